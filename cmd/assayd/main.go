package main

import "assay-backoffice/internal/cli"

func main() {
	cli.Execute()
}
