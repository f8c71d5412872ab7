// Package profiles holds the agent profile registry: immutable records of
// each agent's role, objective, persona and the capabilities it may invoke.
package profiles
