// Package regressor implements a small feed-forward regression network on
// gonum matrices.
//
// The network has two hidden layers with a configurable activation and a
// linear output layer. It is fitted by minibatch gradient descent on the
// mean squared error, with targets min-max scaled during training and
// rescaled on prediction. Inputs are expected to be standardized already.
//
// Callers treat the model as opaque: Configure, AddExample, Train and
// Predict are the whole contract.
package regressor
