// Command pageimport imports a CSV file into the page store from the shell.
package main

func main() {
	execute()
}
