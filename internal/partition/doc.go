// Package partition turns a list of interval inputs into a finite, ordered
// sequence of sample points according to a propagation method.
//
// # Plans
//
// New returns a Plan. A Plan holds no iteration state: every call to
// Points recomputes the sequence from the inputs, so a plan can be replayed
// any number of times and always yields the same points in the same order.
//
// # Methods
//
//   - subinterval: each input is split into n equal sub-intervals; each
//     sub-interval contributes its lower and upper edge, giving 2n values per
//     input and (2n)^k points for k inputs. Default n is DefaultSubintervals.
//   - endpoint: the 2^k vertices of the input box. n is ignored.
//   - monte_carlo: n uniform samples from a PCG stream seeded by Config.Seed.
//   - latin_hypercube: n stratified samples, seeded the same way.
//
// Grid plans (subinterval, endpoint) enumerate the Cartesian product with
// the first input varying slowest.
package partition
