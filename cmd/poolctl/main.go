// Command poolctl drives poolkit pools from the command line.
package main

func main() {
	execute()
}
