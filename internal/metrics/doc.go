// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package metrics provides Prometheus instrumentation for the migration
engine: migration step counts and duration by direction/kind/status,
reservation contention, and the underlying database connection pool's
health.

Collector implements migration.Metrics so an Engine can be wired
directly to a real Prometheus registry via promauto's automatic
registration; RecordDBConnections and RecordDBQuery are called
separately by whatever owns the connection pool's lifecycle.
*/
package metrics
