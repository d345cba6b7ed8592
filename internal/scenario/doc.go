// Package scenario loads and validates the human-editable scenario
// configuration surface of spec.md Section 6: random seed, simulation
// duration, node specs, connection specs, classifier choice and
// parameters, path-loss environments, and periodic scheduler actions.
//
// Loading follows the teacher's internal/config package: koanf/v2 with a
// file provider (YAML) and an environment-variable override layer on top
// of coded defaults.
package scenario
