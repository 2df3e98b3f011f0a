package main

import "txn-anomaly-alerts/internal/cli"

func main() {
	cli.Execute()
}
