// Command rise runs requests through a hierarchical team graph whose teams
// learn which tools to use.
package main

func main() {
	Execute()
}
