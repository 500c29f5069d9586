// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package database provides GORM-backed connection pool management for the
migration store: health checking, pool statistics, and transaction retry
on top of database/sql.

# Overview

PoolManager wraps a *gorm.DB and its underlying *sql.DB, centralizing pool
tuning, idle reclamation, and max-connection limits. A background health
check loop pings the database on an interval and logs diagnostics through
zap on failure.

# Core types

  - PoolManager: holds the GORM DB instance and the underlying sql.DB,
    exposing DB(), SQLDB(), Ping(), Stats(), and Close().
  - PoolConfig: max idle connections, max open connections, connection
    max lifetime, idle timeout, and health check interval.
  - PoolStats: a JSON-friendly view of the pool's sql.DBStats.
  - TransactionFunc: the callback type passed to WithTransaction.

# Capabilities

  - Pool tuning through MaxIdleConns/MaxOpenConns/ConnMaxLifetime.
  - Health checking: periodic PingContext, logging connection and idle
    counts.
  - Transaction management: WithTransaction runs one GORM transaction;
    WithTransactionRetry adds exponential backoff retry for deadlocks,
    serialization failures, and similar transient errors.
  - SQLDB exposes the raw *sql.DB so the migration store can open
    statement-level transactions outside of GORM's model layer.
*/
package database
