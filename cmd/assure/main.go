// Assure - Continuous Cloud Compliance Assessment
// Discover. Evaluate. Certify.
package main

func main() {
	Execute()
}
