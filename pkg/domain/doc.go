/*
Package domain contains the core domain models for the Arbor output
pipeline.

It defines the closed set of output nodes a command can emit, the command
registry entities, and the execution request/result pair exchanged with the
runner. This package is kept pure and free of external I/O, following
Hexagonal Architecture principles.

# Key Entities

  - Node: the closed tagged variant of emittable values (Leaf, structured
    elements, Deferred, Live).
  - Table: the progressive node, able to push rows into an already-built
    backend artifact.
  - Command: a named unit of work with typed parameters and UI hints.
  - Request / Result: what the runner consumes and produces for one
    invocation, including the rendered transcript.
  - Hooks: synchronous lifecycle callbacks for observability.
*/
package domain
