// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package migration implements a database schema migration engine: a
bookkeeping table, a reservation row used as a cross-process mutex,
filesystem and archive discovery of migration files, a command planner,
and an engine that runs migrations in order and records the outcome of
each.

# Core types

  - Descriptor: the immutable record Discovery produces for one migration
    id.
  - Kind: the polymorphic migration object (SQL file, Go function, or a
    third-party extension) built from a Descriptor through a
    KindRegistry.
  - Store: the persistence boundary owning the bookkeeping table and the
    reservation row.
  - Engine: orchestrates one run - plan, then execute sequentially,
    recording an Outcome per step.

# Concurrency model

The engine runs one migration at a time within a process. Safety across
concurrent processes - two deploys racing to migrate the same database -
comes entirely from the reservation row's primary key constraint,
enforced by the database, not from any in-process lock. singleflight only
collapses redundant bookkeeping-table existence checks within one
process; it has no cross-process effect.
*/
package migration
