// Command lsh is the CLI wrapper around the lsh job daemon: every job
// subcommand dials the daemon's Unix-domain socket and calls through
// internal/ipc.Client, and every secrets subcommand drives
// internal/syncengine directly against local storage, matching the two
// independent data flows in the architecture diagram.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gwicho38/lsh-sub006/cli"
	"github.com/gwicho38/lsh-sub006/config"
	"github.com/gwicho38/lsh-sub006/internal/daemon"
	"github.com/gwicho38/lsh-sub006/internal/errkind"
	"github.com/gwicho38/lsh-sub006/internal/ipc"
	"github.com/gwicho38/lsh-sub006/internal/jobs"
	"github.com/gwicho38/lsh-sub006/internal/secretbundle"
	"github.com/gwicho38/lsh-sub006/internal/storage"
	"github.com/gwicho38/lsh-sub006/internal/syncengine"
)

const dialTimeout = 2 * time.Second

func main() {
	app := cli.NewCLI()
	app.AddVersion("1.0.0")
	app.AddCommand(statusCommand())
	app.AddCommand(jobsCommand())
	app.AddCommand(daemonCommand())
	app.AddCommand(secretsCommand())

	if err := app.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lsh:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to the §6 exit-code table, defaulting to 1
// for errors that carry no errkind.Kind (usage errors from the cli
// package itself).
func exitCodeFor(err error) int {
	if kind, ok := errkind.KindOf(err); ok {
		return errkind.CLIExitCode(kind)
	}
	return 1
}

func dial() (*ipc.Client, error) {
	return ipc.Dial(daemon.SocketPath(), dialTimeout)
}

func printJSON(v any) {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "lsh: encode response:", err)
		return
	}
	fmt.Println(string(buf))
}

func statusCommand() *cli.Command {
	return cli.NewCommand("status", "show daemon status", "1.0.0", func(ctx *cli.Context) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		var status ipc.StatusReply
		if err := c.Call("getStatus", nil, &status); err != nil {
			return err
		}
		printJSON(status)
		return nil
	})
}

func jobsCommand() *cli.Command {
	root := cli.NewCommand("jobs", "manage jobs", "1.0.0", nil)

	root.AddSubCommand(cli.NewCommand("list", "list all jobs", "1.0.0", func(ctx *cli.Context) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		var list []*jobs.JobSpec
		if err := c.Call("listJobs", nil, &list); err != nil {
			return err
		}
		printJSON(list)
		return nil
	}))

	getCmd := cli.NewCommand("get", "show one job", "1.0.0", func(ctx *cli.Context) error {
		id, _ := ctx.GetFlag("id")
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		var spec jobs.JobSpec
		if err := c.Call("getJob", map[string]string{"id": id}, &spec); err != nil {
			return err
		}
		printJSON(spec)
		return nil
	})
	getCmd.Flags = append(getCmd.Flags, &cli.Flag{Name: "id", Usage: "job id", Default: ""})
	root.AddSubCommand(getCmd)

	createCmd := cli.NewCommand("create", "create a job", "1.0.0", func(ctx *cli.Context) error {
		id, _ := ctx.GetFlag("id")
		name, _ := ctx.GetFlag("name")
		command, _ := ctx.GetFlag("command")
		intervalStr, _ := ctx.GetFlag("interval")
		cron, _ := ctx.GetFlag("cron")

		spec := &jobs.JobSpec{ID: id, Name: name, Command: command}
		switch {
		case cron != "":
			spec.Schedule = jobs.Schedule{Kind: jobs.ScheduleKindCron, Cron: cron}
		case intervalStr != "":
			ms, err := strconv.ParseInt(intervalStr, 10, 64)
			if err != nil {
				return errkind.Wrap(errkind.InvalidInput, "invalid --interval", err)
			}
			spec.Schedule = jobs.Schedule{Kind: jobs.ScheduleKindInterval, IntervalMS: ms}
		default:
			spec.Schedule = jobs.Schedule{Kind: jobs.ScheduleKindNone}
		}

		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		var created jobs.JobSpec
		if err := c.Call("createJob", spec, &created); err != nil {
			return err
		}
		printJSON(created)
		return nil
	})
	createCmd.Flags = append(createCmd.Flags,
		&cli.Flag{Name: "id", Usage: "job id", Default: ""},
		&cli.Flag{Name: "name", Usage: "job name", Default: ""},
		&cli.Flag{Name: "command", Usage: "shell command line", Default: ""},
		&cli.Flag{Name: "interval", Usage: "interval in milliseconds", Default: ""},
		&cli.Flag{Name: "cron", Usage: "5-field cron expression", Default: ""},
	)
	root.AddSubCommand(createCmd)

	startCmd := cli.NewCommand("start", "run a job immediately, don't wait", "1.0.0", func(ctx *cli.Context) error {
		id, _ := ctx.GetFlag("id")
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		var rec jobs.ExecutionRecord
		if err := c.Call("startJob", map[string]string{"id": id}, &rec); err != nil {
			return err
		}
		printJSON(rec)
		return nil
	})
	startCmd.Flags = append(startCmd.Flags, &cli.Flag{Name: "id", Usage: "job id", Default: ""})
	root.AddSubCommand(startCmd)

	triggerCmd := cli.NewCommand("trigger", "run a job immediately, wait for completion", "1.0.0", func(ctx *cli.Context) error {
		id, _ := ctx.GetFlag("id")
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		var rec jobs.ExecutionRecord
		if err := c.Call("triggerJob", map[string]string{"id": id}, &rec); err != nil {
			return err
		}
		printJSON(rec)
		return nil
	})
	triggerCmd.Flags = append(triggerCmd.Flags, &cli.Flag{Name: "id", Usage: "job id", Default: ""})
	root.AddSubCommand(triggerCmd)

	stopCmd := cli.NewCommand("stop", "stop a job's running execution", "1.0.0", func(ctx *cli.Context) error {
		id, _ := ctx.GetFlag("id")
		signal, _ := ctx.GetFlag("signal")
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		var result struct {
			Stopped bool `json:"stopped"`
		}
		if err := c.Call("stopJob", map[string]string{"id": id, "signal": signal}, &result); err != nil {
			return err
		}
		printJSON(result)
		return nil
	})
	stopCmd.Flags = append(stopCmd.Flags,
		&cli.Flag{Name: "id", Usage: "job id", Default: ""},
		&cli.Flag{Name: "signal", Usage: "signal to send (default SIGTERM)", Default: ""},
	)
	root.AddSubCommand(stopCmd)

	removeCmd := cli.NewCommand("remove", "remove a job", "1.0.0", func(ctx *cli.Context) error {
		id, _ := ctx.GetFlag("id")
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Call("removeJob", map[string]string{"id": id}, nil)
	})
	removeCmd.Flags = append(removeCmd.Flags, &cli.Flag{Name: "id", Usage: "job id", Default: ""})
	root.AddSubCommand(removeCmd)

	historyCmd := cli.NewCommand("history", "show execution history for a job", "1.0.0", func(ctx *cli.Context) error {
		id, _ := ctx.GetFlag("id")
		limitStr, _ := ctx.GetFlag("limit")
		limit, _ := strconv.Atoi(limitStr)

		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		var history []*jobs.ExecutionRecord
		if err := c.Call("getJobHistory", map[string]any{"id": id, "limit": limit}, &history); err != nil {
			return err
		}
		printJSON(history)
		return nil
	})
	historyCmd.Flags = append(historyCmd.Flags,
		&cli.Flag{Name: "id", Usage: "job id", Default: ""},
		&cli.Flag{Name: "limit", Usage: "max entries to return", Default: "20"},
	)
	root.AddSubCommand(historyCmd)

	statsCmd := cli.NewCommand("stats", "show statistics for a job", "1.0.0", func(ctx *cli.Context) error {
		id, _ := ctx.GetFlag("id")
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		var stats jobs.JobStatistics
		if err := c.Call("getJobStatistics", map[string]string{"id": id}, &stats); err != nil {
			return err
		}
		printJSON(stats)
		return nil
	})
	statsCmd.Flags = append(statsCmd.Flags, &cli.Flag{Name: "id", Usage: "job id", Default: ""})
	root.AddSubCommand(statsCmd)

	return root
}

func daemonCommand() *cli.Command {
	root := cli.NewCommand("daemon", "control the daemon process", "1.0.0", nil)

	root.AddSubCommand(cli.NewCommand("stop", "stop the daemon", "1.0.0", func(ctx *cli.Context) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Call("stopDaemon", nil, nil)
	}))

	root.AddSubCommand(cli.NewCommand("restart", "restart the daemon", "1.0.0", func(ctx *cli.Context) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Call("restartDaemon", nil, nil)
	}))

	return root
}

// secretsCommand's push/pull talk to internal/syncengine directly, not
// through the daemon's IPC socket: secret sync is independent of the job
// scheduler and works even with no daemon running, per the architecture
// diagram's separate "CLI -> C7 -> C8" flow.
func secretsCommand() *cli.Command {
	root := cli.NewCommand("secrets", "push/pull encrypted secret bundles", "1.0.0", nil)

	pushCmd := cli.NewCommand("push", "encrypt and publish a secret bundle", "1.0.0", func(ctx *cli.Context) error {
		env, _ := ctx.GetFlag("env")
		repo, _ := ctx.GetFlag("repo")
		branch, _ := ctx.GetFlag("branch")
		file, _ := ctx.GetFlag("file")
		key := secretKey()

		raw, err := os.ReadFile(file)
		if err != nil {
			return errkind.Wrap(errkind.InvalidInput, "read --file", err)
		}
		var secrets []secretbundle.Secret
		if err := json.Unmarshal(raw, &secrets); err != nil {
			return errkind.Wrap(errkind.InvalidInput, "--file is not a JSON array of {key,value,description?,tags?} secrets", err)
		}

		engine, err := newSyncEngine()
		if err != nil {
			return err
		}
		result, err := engine.Push(context.Background(), syncengine.PushRequest{
			Secrets:     secrets,
			Key:         key,
			Environment: env,
			GitRepo:     repo,
			GitBranch:   branch,
		})
		if err != nil {
			return err
		}
		printJSON(result)
		return nil
	})
	pushCmd.Flags = append(pushCmd.Flags,
		&cli.Flag{Name: "env", Usage: "environment name", Default: ""},
		&cli.Flag{Name: "repo", Usage: "git repository, optional", Default: ""},
		&cli.Flag{Name: "branch", Usage: "git branch, optional", Default: ""},
		&cli.Flag{Name: "file", Usage: "path to a JSON array of secrets", Default: ""},
	)
	root.AddSubCommand(pushCmd)

	pullCmd := cli.NewCommand("pull", "retrieve and decrypt a secret bundle", "1.0.0", func(ctx *cli.Context) error {
		env, _ := ctx.GetFlag("env")
		repo, _ := ctx.GetFlag("repo")
		key := secretKey()

		engine, err := newSyncEngine()
		if err != nil {
			return err
		}
		secrets, err := engine.Pull(context.Background(), syncengine.PullRequest{
			Key:         key,
			Environment: env,
			GitRepo:     repo,
		})
		if err != nil {
			return err
		}
		printJSON(secrets)
		return nil
	})
	pullCmd.Flags = append(pullCmd.Flags,
		&cli.Flag{Name: "env", Usage: "environment name", Default: ""},
		&cli.Flag{Name: "repo", Usage: "git repository, optional", Default: ""},
	)
	root.AddSubCommand(pullCmd)

	return root
}

// secretKey resolves the bundle encryption key from LSH_MASTER_KEY,
// falling back to LSH_SECRETS_KEY, per spec §6.
func secretKey() string {
	if key := config.GetEnvAsString("LSH_MASTER_KEY", ""); key != "" {
		return key
	}
	return config.GetEnvAsString("LSH_SECRETS_KEY", "")
}

func newSyncEngine() (*syncengine.Engine, error) {
	home, err := daemon.DefaultHomeDir()
	if err != nil {
		return nil, fmt.Errorf("lsh: resolve home directory: %w", err)
	}
	lshDir := filepath.Join(home, ".lsh")
	if err := os.MkdirAll(lshDir, 0o755); err != nil {
		return nil, fmt.Errorf("lsh: create state directory: %w", err)
	}

	backend, err := storage.NewFileStore(filepath.Join(lshDir, "storage.json"))
	if err != nil {
		return nil, fmt.Errorf("lsh: open storage: %w", err)
	}
	return syncengine.New(backend, syncengine.Options{CacheDir: filepath.Join(lshDir, "secrets-cache")})
}
