// Package tasks holds task specs: the simulated user input for a scenario,
// the structured assertions its outcome must satisfy, and the agent it is
// assigned to. Specs are validated against the agent registry at
// registration so that broken references fail before anything runs.
package tasks
