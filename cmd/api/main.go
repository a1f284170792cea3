package main

import (
	"log"
	"os"
	"symphony/cmd"

	"go.uber.org/zap"
)

func main() {
	zap.S().Infof("starting api at commit %s", os.Getenv("commit_hash"))
	deps, err := cmd.InitializeDependencies()
	if err != nil {
		log.Fatal(err)
	}
	defer cmd.CloseDependencies(deps)

	err = deps.ApiHandler.StartApi(deps.Config.Port)
	if err != nil {
		log.Fatal(err)
	}
}
