//go:build !race

package flasky

func passwordHashCost() int {
	return 12
}
