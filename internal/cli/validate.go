package cli

import (
	"fmt"
	"os"
)

// ExecuteValidate loads and validates a pipeline definition without running
// it. It returns the process exit code.
func ExecuteValidate(file string) int {
	pipe, code := buildPipeline(file, false)
	if pipe == nil {
		return code
	}

	g := pipe.Graph()
	fmt.Printf("pipeline %q is valid: %d nodes, %d edges, fan-out at %q\n",
		g.Name(), len(g.Nodes()), len(g.Edges()), g.FanOut().ID)
	return ExitOK
}

// ExecuteGraph prints the Mermaid rendering of a pipeline definition.
func ExecuteGraph(file string) int {
	pipe, code := buildPipeline(file, false)
	if pipe == nil {
		return code
	}

	g := pipe.Graph()
	fmt.Fprint(os.Stdout, mermaidFor(g))
	return ExitOK
}
