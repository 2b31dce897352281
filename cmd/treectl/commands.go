package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bluesky-social/hierarchy/models"
	"github.com/bluesky-social/hierarchy/nestedset"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/urfave/cli/v2"
)

var cmdMigrate = &cli.Command{
	Name:  "migrate",
	Usage: "create or update the tree tables",
	Action: func(cctx *cli.Context) error {
		s, err := openSession(cctx)
		if err != nil {
			return err
		}
		defer s.Close()
		return models.AutoMigrate(s.db)
	},
}

var cmdAdd = &cli.Command{
	Name:      "add",
	Usage:     "insert a node, as a root unless --parent is given",
	ArgsUsage: "<label>",
	Flags: []cli.Flag{
		&cli.Uint64Flag{
			Name:  "parent",
			Usage: "id of the parent node",
		},
	},
	Action: func(cctx *cli.Context) error {
		label := strings.Join(cctx.Args().Slice(), " ")
		if label == "" {
			return fmt.Errorf("label is required")
		}
		s, err := openSession(cctx)
		if err != nil {
			return err
		}
		defer s.Close()

		id, err := s.kind.Add(cctx.Context, label, optionalID(cctx, "parent"))
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var cmdMove = &cli.Command{
	Name:      "move",
	Usage:     "re-parent a subtree; without --parent it becomes a root",
	ArgsUsage: "<id>",
	Flags: []cli.Flag{
		&cli.Uint64Flag{
			Name:  "parent",
			Usage: "id of the new parent node",
		},
	},
	Action: func(cctx *cli.Context) error {
		id, err := idArg(cctx)
		if err != nil {
			return err
		}
		s, err := openSession(cctx)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := s.kind.Move(cctx.Context, id, optionalID(cctx, "parent"))
		if err != nil {
			return err
		}
		fmt.Printf("%d\tscope=%d\t%d..%d\n", n.ID, n.ScopeID, n.Lft, n.Rgt)
		return nil
	},
}

var cmdDelete = &cli.Command{
	Name:      "delete",
	Usage:     "delete a node and its subtree",
	ArgsUsage: "<id>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "reparent",
			Usage: "keep the children, handing them to the deleted node's parent",
		},
	},
	Action: func(cctx *cli.Context) error {
		id, err := idArg(cctx)
		if err != nil {
			return err
		}
		s, err := openSession(cctx)
		if err != nil {
			return err
		}
		defer s.Close()

		policy := nestedset.Cascade
		if cctx.Bool("reparent") {
			policy = nestedset.ReparentChildren
		}
		return s.kind.Delete(cctx.Context, id, policy)
	},
}

var cmdRebuild = &cli.Command{
	Name:  "rebuild",
	Usage: "recompute intervals from parent links, for one scope or the whole table",
	Flags: []cli.Flag{
		&cli.Uint64Flag{
			Name:  "scope",
			Usage: "only rebuild this scope",
		},
	},
	Action: func(cctx *cli.Context) error {
		s, err := openSession(cctx)
		if err != nil {
			return err
		}
		defer s.Close()

		report, err := s.kind.Rebuild(cctx.Context, optionalID(cctx, "scope"))
		if err != nil {
			return err
		}
		fmt.Printf("nodes=%d updated=%d scopes=%d repaired=%d\n", report.Nodes, report.Updated, report.Scopes, len(report.Repaired))
		for _, r := range report.Repaired {
			fmt.Println(r.Error())
		}
		return nil
	},
}

var cmdVerify = &cli.Command{
	Name:  "verify",
	Usage: "check interval invariants; exits non-zero when problems are found",
	Flags: []cli.Flag{
		&cli.Uint64Flag{
			Name:  "scope",
			Usage: "only check this scope",
		},
	},
	Action: func(cctx *cli.Context) error {
		s, err := openSession(cctx)
		if err != nil {
			return err
		}
		defer s.Close()

		problems, err := s.kind.Verify(cctx.Context, optionalID(cctx, "scope"))
		if err != nil {
			return err
		}
		for _, p := range problems {
			fmt.Println(p.String())
		}
		if len(problems) > 0 {
			return fmt.Errorf("%s: %d problems found", s.kind.Table(), len(problems))
		}
		return nil
	},
}

var cmdShow = &cli.Command{
	Name:  "show",
	Usage: "print the tree",
	Flags: []cli.Flag{
		&cli.Uint64Flag{
			Name:  "id",
			Usage: "only print the subtree rooted here",
		},
	},
	Action: func(cctx *cli.Context) error {
		s, err := openSession(cctx)
		if err != nil {
			return err
		}
		defer s.Close()

		tree, err := s.kind.Render(cctx.Context, optionalID(cctx, "id"))
		if err != nil {
			return err
		}
		fmt.Print(tree.String())
		return nil
	},
}

var cmdSeed = &cli.Command{
	Name:  "seed",
	Usage: "fill the tree with random nodes",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "roots",
			Value: 3,
		},
		&cli.IntFlag{
			Name:  "depth",
			Value: 3,
		},
		&cli.IntFlag{
			Name:  "fanout",
			Usage: "maximum children per node",
			Value: 4,
		},
		&cli.Int64Flag{
			Name:  "seed",
			Usage: "random seed; 0 picks one",
		},
	},
	Action: func(cctx *cli.Context) error {
		s, err := openSession(cctx)
		if err != nil {
			return err
		}
		defer s.Close()

		faker := gofakeit.New(cctx.Int64("seed"))
		var count int
		var grow func(parent *uint64, depth int) error
		grow = func(parent *uint64, depth int) error {
			id, err := s.kind.Add(cctx.Context, faker.HackerPhrase(), parent)
			if err != nil {
				return err
			}
			count++
			if depth <= 1 {
				return nil
			}
			for i := faker.Number(0, cctx.Int("fanout")); i > 0; i-- {
				if err := grow(&id, depth-1); err != nil {
					return err
				}
			}
			return nil
		}
		for i := 0; i < cctx.Int("roots"); i++ {
			if err := grow(nil, cctx.Int("depth")); err != nil {
				return err
			}
		}
		fmt.Printf("inserted %d nodes into %s\n", count, s.kind.Table())
		return nil
	},
}

func idArg(cctx *cli.Context) (uint64, error) {
	if cctx.Args().Len() != 1 {
		return 0, fmt.Errorf("expected a single node id argument")
	}
	id, err := strconv.ParseUint(cctx.Args().First(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %#v: %w", cctx.Args().First(), err)
	}
	return id, nil
}

// optionalID returns nil unless the flag was given. A scope of 0 is meaningful (the single
// tree), so presence is checked with IsSet rather than the value.
func optionalID(cctx *cli.Context, name string) *uint64 {
	if !cctx.IsSet(name) {
		return nil
	}
	v := cctx.Uint64(name)
	return &v
}
