// Package main provides the entry point for the owlpair CLI.
//
// owlpair solves a task with two cooperating language-model agents: an
// instructor that breaks the task into steps and a solver that carries
// them out, reading web pages through a crawl-and-extract tool.
//
// Usage:
//
//	owlpair run "<task>"
//	owlpair crawl <url>...
//	owlpair history
//
// See --help for all available options.
package main

func main() {
	Execute()
}
