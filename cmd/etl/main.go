// Command etl runs the shop batch pipeline and its query API.
//
//	etl run      --config configs/pipeline.yaml
//	etl validate --config configs/pipeline.yaml
//	etl migrate  --config configs/pipeline.yaml [--print]
//	etl serve    --config configs/pipeline.yaml --addr :8080
package main

import (
	"os"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "shopetl/internal/storage/all"
)

func main() {
	if err := newRootCommand(os.Getenv).Execute(); err != nil {
		os.Exit(1)
	}
}
