/*
Package ports defines the driven ports (interfaces) for the Arbor output
pipeline.

These interfaces decouple the render context and runner from concrete
presentation backends and storage, allowing the core to target an
interactive surface, a terminal stream, or a test double without change.

# Key Interfaces

  - Backend: builds output nodes into backend artifacts and places them
    (the layout layer implements this per node kind).
  - Scheduler: optional backend callback queue used for queued execution.
  - RunStore: persistence for run records (transcripts and outcomes).
*/
package ports
