// Command lockguard manages note locks from the shell.
package main

import "github.com/lockguard/lockguard/internal/cli"

func main() {
	cli.Execute()
}
