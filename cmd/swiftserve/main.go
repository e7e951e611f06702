// Command swiftserve answers read-only queries against SWIFT snapshot files:
// field reads (whole or masked), metadata, units and path lookups.
package main

func main() {
	Execute()
}
