// Command volshmctl inspects and edits the shared application volume state.
package main

func main() {
	Execute()
}
