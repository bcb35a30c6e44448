package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/charforge/internal"
	"github.com/starford/charforge/internal/models"
	"github.com/starford/charforge/internal/wizard"
)

// Conflict resolution modes for save and sync.
const (
	onConflictLoad      = "load"
	onConflictOverwrite = "overwrite"
)

var errConflict = errors.New("conflict: remote has a newer version; rerun with --on-conflict=load or --on-conflict=overwrite")

type sessionAction func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error

// withSession opens the wizard state for one command and flushes any
// scheduled sync before returning.
func withSession(fn sessionAction) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		sess, err := internal.OpenSession(cfg, nil)
		if err != nil {
			return err
		}
		runErr := fn(ctx, cmd, sess)
		if err := sess.Close(ctx); err != nil && runErr == nil {
			runErr = err
		}
		return runErr
	}
}

func arg(cmd *cli.Command, n int, name string) (string, error) {
	v := cmd.Args().Get(n)
	if v == "" {
		return "", fmt.Errorf("missing argument <%s>", name)
	}
	return v, nil
}

func intArg(cmd *cli.Command, n int, name string) (int, error) {
	raw, err := arg(cmd, n, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("<%s> must be a number: %q", name, raw)
	}
	return v, nil
}

func out(cmd *cli.Command) io.Writer { return cmd.Root().Writer }

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printStatus writes the status lines of the view.
func printStatus(w io.Writer, v wizard.View) {
	if v.ImportError != "" {
		fmt.Fprintln(w, v.ImportError)
	}
	if v.SaveStatus != "" {
		line := v.SaveStatus
		if v.SavedPath != "" {
			line += ": " + v.SavedPath
		}
		fmt.Fprintln(w, line)
	}
	if v.CloudError != "" {
		fmt.Fprintln(w, v.CloudError)
	}
	for _, p := range v.Problems {
		fmt.Fprintln(w, "  - "+p)
	}
}

func printStep(w io.Writer, v wizard.View) {
	fmt.Fprintf(w, "step %d/%d: %s (%s)\n", v.StepIndex+1, len(v.Steps), v.Step.Label, v.Step.Hint)
}

// resolveConflict applies the --on-conflict mode to a pending conflict.
func resolveConflict(ctx context.Context, w io.Writer, c *wizard.Controller, mode string) error {
	if c.View().Conflict == nil {
		return nil
	}
	switch mode {
	case onConflictLoad:
		c.LoadRemote()
		fmt.Fprintln(w, "loaded remote version")
		return nil
	case onConflictOverwrite:
		ok := c.OverwriteRemote(ctx)
		printStatus(w, c.View())
		if !ok {
			return errors.New(wizard.MsgForceFailed)
		}
		return nil
	default:
		return errConflict
	}
}

func onConflictFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "on-conflict",
		Usage: "What to do when the remote copy is newer: load or overwrite",
	}
}

func wizardCommand() *cli.Command {
	return &cli.Command{
		Name:  "wizard",
		Usage: "Edit the character draft",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the wizard state as JSON",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "sheet", Usage: "Print only the record"},
				},
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					v := sess.Controller.View()
					if cmd.Bool("sheet") {
						return printJSON(out(cmd), v.Sheet)
					}
					return printJSON(out(cmd), v)
				}),
			},
			{
				Name:      "step",
				Usage:     "Move to a step: next, prev, a step id or its number",
				ArgsUsage: "<next|prev|step>",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					c := sess.Controller
					switch target := cmd.Args().First(); target {
					case "", "next":
						c.Next()
					case "prev":
						c.Prev()
					default:
						step, err := wizard.ParseStep(target)
						if err != nil {
							return err
						}
						if err := c.Goto(step); err != nil {
							return err
						}
					}
					printStep(out(cmd), c.View())
					return nil
				}),
			},
			{
				Name:      "set",
				Usage:     "Set a field: name, concept, background, notes, level or an attribute",
				ArgsUsage: "<field> <value>",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					field, err := arg(cmd, 0, "field")
					if err != nil {
						return err
					}
					value := strings.Join(cmd.Args().Tail(), " ")
					return setField(sess.Controller, field, value)
				}),
			},
			skillCommand(),
			gearCommand(),
			{
				Name:      "import",
				Usage:     "Replace the draft with a character file",
				ArgsUsage: "<file>",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					path, err := arg(cmd, 0, "file")
					if err != nil {
						return err
					}
					c := sess.Controller
					if !c.ImportFile(path) {
						return errors.New(c.View().ImportError)
					}
					v := c.View()
					fmt.Fprintf(out(cmd), "imported %s\n", v.Sheet.Name)
					printStep(out(cmd), v)
					return nil
				}),
			},
			{
				Name:      "export",
				Usage:     "Write the draft as JSON to a file or stdout",
				ArgsUsage: "[file]",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					path := cmd.Args().First()
					if path == "" || path == "-" {
						return sess.Controller.Export(out(cmd))
					}
					f, err := os.Create(path)
					if err != nil {
						return err
					}
					if err := sess.Controller.Export(f); err != nil {
						f.Close()
						return err
					}
					return f.Close()
				}),
			},
			{
				Name:  "reset",
				Usage: "Discard the draft and start over",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					sess.Controller.Reset()
					printStep(out(cmd), sess.Controller.View())
					return nil
				}),
			},
			{
				Name:  "save",
				Usage: "Save through the selected storage target",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "target", Aliases: []string{"t"}, Usage: "Storage target: draft, cloud or export"},
					onConflictFlag(),
				},
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					c := sess.Controller
					if t := cmd.String("target"); t != "" {
						if err := c.SelectProvider(t); err != nil {
							return err
						}
					}
					res := c.Save(ctx)
					printStatus(out(cmd), c.View())
					if res.Conflict != nil {
						return resolveConflict(ctx, out(cmd), c, cmd.String("on-conflict"))
					}
					if !res.OK() {
						return errors.New(res.Message)
					}
					return nil
				}),
			},
			cloudCommand(),
			{
				Name:  "sync",
				Usage: "Push the draft to the cloud now",
				Flags: []cli.Flag{onConflictFlag()},
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					c := sess.Controller
					st := c.SyncNow(ctx)
					fmt.Fprintln(out(cmd), st.Message)
					if st.Conflict != nil {
						return resolveConflict(ctx, out(cmd), c, cmd.String("on-conflict"))
					}
					if st.Error != "" {
						return errors.New(st.Error)
					}
					return nil
				}),
			},
			{
				Name:  "rules",
				Usage: "Check the rules service",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					fmt.Fprintln(out(cmd), sess.Controller.CheckRules(ctx))
					return nil
				}),
			},
		},
	}
}

func setField(c *wizard.Controller, field, value string) error {
	switch field {
	case "name":
		c.SetName(value)
	case "concept":
		c.SetConcept(value)
	case "background":
		c.SetBackground(value)
	case "notes":
		c.SetNotes(value)
	case "level":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("level must be a number: %q", value)
		}
		c.SetLevel(n)
	default:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be a number: %q", field, value)
		}
		return c.SetAttribute(models.AttributeKey(field), n)
	}
	return nil
}

func skillCommand() *cli.Command {
	return &cli.Command{
		Name:  "skill",
		Usage: "Edit skills",
		Commands: []*cli.Command{
			{
				Name:      "add",
				ArgsUsage: "<label> [rank]",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					label, err := arg(cmd, 0, "label")
					if err != nil {
						return err
					}
					rank := 0
					if cmd.NArg() > 1 {
						if rank, err = intArg(cmd, 1, "rank"); err != nil {
							return err
						}
					}
					e := sess.Controller.AddSkill(label, rank)
					fmt.Fprintf(out(cmd), "added skill %s\n", e.Key)
					return nil
				}),
			},
			{
				Name:      "rank",
				ArgsUsage: "<key> <rank>",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					key, err := arg(cmd, 0, "key")
					if err != nil {
						return err
					}
					rank, err := intArg(cmd, 1, "rank")
					if err != nil {
						return err
					}
					return sess.Controller.UpdateSkill(key, func(e *models.SkillEntry) { e.Rank = rank })
				}),
			},
			{
				Name:      "focus",
				ArgsUsage: "<key> <focus>",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					key, err := arg(cmd, 0, "key")
					if err != nil {
						return err
					}
					focus := strings.Join(cmd.Args().Tail(), " ")
					return sess.Controller.UpdateSkill(key, func(e *models.SkillEntry) { e.Focus = focus })
				}),
			},
			{
				Name:      "rm",
				ArgsUsage: "<key>",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					key, err := arg(cmd, 0, "key")
					if err != nil {
						return err
					}
					return sess.Controller.RemoveSkill(key)
				}),
			},
		},
	}
}

func gearCommand() *cli.Command {
	return &cli.Command{
		Name:  "gear",
		Usage: "Edit gear",
		Commands: []*cli.Command{
			{
				Name:      "add",
				ArgsUsage: "<name> [type]",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					name, err := arg(cmd, 0, "name")
					if err != nil {
						return err
					}
					e, err := sess.Controller.AddGear(name, models.GearType(cmd.Args().Get(1)))
					if err != nil {
						return err
					}
					fmt.Fprintf(out(cmd), "added gear %s\n", e.ID)
					return nil
				}),
			},
			{
				Name:      "notes",
				ArgsUsage: "<id> <notes>",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					id, err := arg(cmd, 0, "id")
					if err != nil {
						return err
					}
					notes := strings.Join(cmd.Args().Tail(), " ")
					return sess.Controller.UpdateGear(id, func(e *models.GearEntry) { e.Notes = notes })
				}),
			},
			{
				Name:      "rm",
				ArgsUsage: "<id>",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					id, err := arg(cmd, 0, "id")
					if err != nil {
						return err
					}
					return sess.Controller.RemoveGear(id)
				}),
			},
		},
	}
}

func cloudCommand() *cli.Command {
	return &cli.Command{
		Name:  "cloud",
		Usage: "Cloud sync settings and remote records",
		Commands: []*cli.Command{
			{
				Name:  "on",
				Usage: "Enable automatic sync",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					sess.Controller.SetCloudEnabled(true)
					fmt.Fprintln(out(cmd), "cloud sync enabled")
					return nil
				}),
			},
			{
				Name:  "off",
				Usage: "Disable automatic sync",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					sess.Controller.SetCloudEnabled(false)
					fmt.Fprintln(out(cmd), "cloud sync disabled")
					return nil
				}),
			},
			{
				Name:      "key",
				Usage:     "Store the API key",
				ArgsUsage: "<key>",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					sess.Controller.SetAPIKey(cmd.Args().First())
					return nil
				}),
			},
			{
				Name:  "list",
				Usage: "List remote characters",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					c := sess.Controller
					c.RefreshCloudList(ctx)
					v := c.View()
					if !v.CloudEnabled {
						return errors.New("cloud sync is disabled")
					}
					if v.CloudError != "" {
						return errors.New(v.CloudError)
					}
					for _, s := range v.CloudList {
						fmt.Fprintf(out(cmd), "%s\t%s\t%s\n", s.ID, s.Name, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
					}
					return nil
				}),
			},
			{
				Name:      "load",
				Usage:     "Replace the draft with a remote character",
				ArgsUsage: "<id>",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					id, err := arg(cmd, 0, "id")
					if err != nil {
						return err
					}
					c := sess.Controller
					if !c.LoadFromCloud(ctx, id) {
						return errors.New(c.View().CloudError)
					}
					fmt.Fprintf(out(cmd), "loaded %s\n", c.View().Sheet.Name)
					return nil
				}),
			},
			{
				Name:      "rm",
				Usage:     "Delete a remote character",
				ArgsUsage: "<id>",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					id, err := arg(cmd, 0, "id")
					if err != nil {
						return err
					}
					c := sess.Controller
					if !c.RemoveFromCloud(ctx, id) {
						return errors.New(c.View().CloudError)
					}
					return nil
				}),
			},
		},
	}
}
