// Command webui-pipes runs the tool server and offers operator helpers for
// pipelines and ACLs.
package main

import "os"

func main() {
	os.Exit(int(Run(os.Args[1:])))
}
