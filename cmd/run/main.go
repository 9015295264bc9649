package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/fumin/wickgen/config"
	"github.com/fumin/wickgen/diagram"
	"github.com/fumin/wickgen/fock"
	"github.com/fumin/wickgen/gamma"
	"github.com/fumin/wickgen/op"
	"github.com/fumin/wickgen/out"
	"github.com/fumin/wickgen/store"
	"github.com/fumin/wickgen/util"
)

// verifyOrbitals is the number of spatial orbitals the reductions are verified on.
const verifyOrbitals = 2

var (
	configPath = flag.String("c", "", "equation description in YAML, the built-in residual if empty")
	outPath    = flag.String("o", "", "output file, overrides the description")
	dbPath     = flag.String("db", "", "gamma registry, overrides the description")
	useBlas    = flag.Bool("blas", false, "multiply merged tensors with BLAS")
	verify     = flag.Bool("verify", false, "verify the normal ordering of every contraction")
	terms      = flag.Bool("terms", false, "print the terms of every contraction to stderr")
	dump       = flag.Bool("dump", false, "print the equation description and exit")
)

func readConfig() (config.Config, error) {
	c := config.Default()
	if *configPath != "" {
		var err error
		c, err = config.Load(*configPath)
		if err != nil {
			return config.Config{}, errors.Wrap(err, "")
		}
	}
	if *outPath != "" {
		c.Output = *outPath
	}
	if *dbPath != "" {
		c.DB = *dbPath
	}
	if *useBlas {
		c.Blas = true
	}
	return c, nil
}

// emit writes a task for every distinct gamma of results.
// Gammas are named by the registry, so that equal gammas share a name across runs.
func emit(reg *store.Registry, arena *op.Arena, results []diagram.Result, c config.Config) (*out.OutStream, error) {
	s := out.New()
	emitted := make(map[string]bool)
	tt := util.NewThrottler(time.Second)
	for i, r := range results {
		g := gamma.FromResult(arena, r, c.Merged)
		key := g.Key()
		name, created, err := reg.Resolve(key)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		if created {
			log.Printf("new %s for %s", name, r.Diagram)
		}
		if emitted[key] {
			continue
		}
		emitted[key] = true

		g.Name = name
		task, err := g.Task(len(emitted)-1, c.Blas)
		if err != nil {
			return nil, errors.Wrap(err, r.Diagram.String())
		}
		s.Merge(task)

		if tt.Ok() {
			log.Printf("%d/%d contractions, %d gammas, %d skipped logs", i+1, len(results), len(emitted), tt.Skipped())
		}
	}
	return s, nil
}

func write(path string, s *out.OutStream) error {
	if path == "" {
		if _, err := s.WriteTo(os.Stdout); err != nil {
			return errors.Wrap(err, "")
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if _, err1 := s.WriteTo(f); err1 != nil {
		err = errors.Wrap(err1, "")
	}
	if err1 := f.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	c, err := readConfig()
	if err != nil {
		return errors.Wrap(err, "")
	}
	if *dump {
		b, err := c.Marshal()
		if err != nil {
			return errors.Wrap(err, "")
		}
		if _, err := os.Stdout.Write(b); err != nil {
			return errors.Wrap(err, "")
		}
		return nil
	}

	e, err := c.Equation()
	if err != nil {
		return errors.Wrap(err, "")
	}
	results, err := e.Solve()
	if err != nil {
		return errors.Wrap(err, "")
	}
	log.Printf("%s: %d diagrams, %d contractions", e.Name, len(e.Diagrams), len(results))
	if *terms {
		diagram.Print(os.Stderr, results)
	}
	if *verify {
		for _, r := range results {
			if err := fock.Verify(r.Term, verifyOrbitals); err != nil {
				return errors.Wrap(err, r.Diagram.String())
			}
		}
		log.Printf("verified %d contractions", len(results))
	}

	db := c.DB
	if db == "" {
		db = store.Memory
	}
	reg, err := store.Open(db)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer reg.Close()

	s, err := emit(reg, e.Arena(), results, c)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := write(c.Output, s); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}
