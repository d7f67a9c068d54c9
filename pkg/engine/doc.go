// Package engine is the composition root for shrub. It loads configuration,
// builds one executor per provider entry through a kind-keyed factory table,
// applies the model filter and credential gate, and hands the result to a
// harness.Harness. Frontends only talk to Engine.
package engine
