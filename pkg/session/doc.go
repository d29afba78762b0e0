/*
Package session serializes command runs per session key.

An embedding server that hosts many clients can hand the runner a
Manager so that requests carrying the same session key execute one at a
time, locally via refcounted in-process locks and, across replicas,
through an optional distributed locker.
*/
package session
