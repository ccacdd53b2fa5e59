// Package prediction turns regressor outputs into named arm angles and
// runs inference over a whole test set concurrently.
package prediction
