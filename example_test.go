package mahina_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/aretw0/mahina"
	"github.com/aretw0/mahina/pkg/core"
	"github.com/aretw0/mahina/pkg/tools/toolstest"
	"github.com/aretw0/mahina/pkg/workspace"
)

// Example_render wires a runtime with scripted tools and renders June 2024
// with tide and sun data.
func Example_render() {
	dataDir, err := os.MkdirTemp("", "mahina-data-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dataDir)
	for _, name := range workspace.DefaultRequired {
		if err := os.WriteFile(filepath.Join(dataDir, name), []byte(name), 0o644); err != nil {
			log.Fatal(err)
		}
	}

	cfg := mahina.DefaultConfig()
	cfg.DataDir = dataDir
	cfg.WorkDir = filepath.Join(dataDir, "work")
	cfg.Assets.Watch = false

	rt, err := mahina.New(cfg, mahina.WithRunner(&toolstest.Fake{
		Astro: map[core.SourceKind]string{
			core.SourceSun: "06/01/2024  sundata: 5:49AM HST  Sunrise\n",
		},
	}))
	if err != nil {
		log.Fatal(err)
	}
	defer rt.Close()

	req, _, err := core.ParseRequest(core.RequestInput{
		Month:   "6",
		Year:    "2024",
		Station: "Honolulu",
		Options: []string{"tide", "sun"},
	})
	if err != nil {
		log.Fatal(err)
	}

	res, err := rt.Pipeline.Run(context.Background(), req)
	if err != nil {
		log.Fatal(err)
	}

	include, _ := os.ReadFile(filepath.Join(res.Dir, "include.dat"))
	sun, _ := os.ReadFile(filepath.Join(res.Dir, "sun.dat"))
	fmt.Println(res.State)
	fmt.Print(string(include))
	fmt.Print(string(sun))

	// Output:
	// done
	// opt -a en -r Latin4
	// def big_island_def
	// include mahina.def.dat
	// include tide.dat
	// include sun.dat
	// 06/01/2024  sundata: 5:49AM HST  SR
}
