// Package policy models smart policies: the access rules, delivery receipt
// and integrity fingerprints sealed into every protected document.
package policy
