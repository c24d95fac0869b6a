package main

import (
	"CampusNotify/internal/bootstrap"
	pkg "CampusNotify/pkg/routes"

	"go.uber.org/fx"
)

func main() {
	bootstrap.Loadenv()
	app := fx.New(
		pkg.AppModules,
	)

	app.Run()
}
