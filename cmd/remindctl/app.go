package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/statemesh"
	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/flow"
	"github.com/hupe1980/statemesh/logging"
	"github.com/hupe1980/statemesh/model"
	"github.com/hupe1980/statemesh/model/anthropic"
	"github.com/hupe1980/statemesh/model/openai"
	"github.com/hupe1980/statemesh/runner"
	"github.com/hupe1980/statemesh/session"
	"github.com/hupe1980/statemesh/tool"
)

const agentName = "memory_agent"

// app wires the durable store, the model and the mesh for one CLI run.
type app struct {
	cfg      Config
	db       *session.SQLiteStore
	store    core.SessionStore
	registry *session.Registry
	mesh     *statemesh.Mesh
	out      io.Writer
	logger   logging.Logger
}

func newApp(cfg Config, out io.Writer) (*app, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	db, err := session.OpenSQLite(cfg.Database, func(o *session.SQLiteOptions) { o.Logger = logger })
	if err != nil {
		return nil, err
	}

	var store core.SessionStore = db
	if cfg.CacheSize > 0 {
		cached, err := session.NewCachedStore(db, cfg.CacheSize)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		store = cached
	}

	a := &app{
		cfg:      cfg,
		db:       db,
		store:    store,
		registry: session.NewRegistry(store, func(o *session.RegistryOptions) { o.Logger = logger }),
		out:      out,
		logger:   logger,
	}
	return a, nil
}

// initMesh builds the model-backed mesh. Listing commands never need it.
func (a *app) initMesh() error {
	llm, err := newModel(a.cfg)
	if err != nil {
		return err
	}
	return a.useModel(llm)
}

func (a *app) useModel(llm model.Model) error {
	loop, err := flow.NewToolLoop(llm, func(o *flow.ToolLoopOptions) {
		o.Name = agentName
		o.Tools = tool.NewReminderTools()
		o.MaxParallel = a.cfg.MaxParallel
	})
	if err != nil {
		return err
	}

	a.mesh = statemesh.New(loop, func(o *statemesh.Options) {
		o.SessionStore = a.store
		o.AgentName = agentName
		o.Instruction = runner.StaticInstruction(reminderInstruction)
		o.MaxModelCalls = a.cfg.MaxModelCalls
		o.Logger = a.logger
	})
	return nil
}

func (a *app) Close() error { return a.db.Close() }

// initialState seeds a brand new session only.
func (a *app) initialState() core.State {
	return core.State{
		tool.KeyUserName:  core.String(a.cfg.UserName),
		tool.KeyReminders: core.List{},
	}
}

// resolveSession finds or creates the session used by the REPL.
func (a *app) resolveSession(ctx context.Context) (*core.Session, bool, error) {
	return a.registry.FindOrCreate(ctx, session.FindOrCreateRequest{
		AppName:      a.cfg.AppName,
		UserID:       a.cfg.UserID,
		SessionID:    a.cfg.SessionID,
		InitialState: a.initialState(),
	})
}

// processMessage runs one turn and prints state around it. Display errors
// are reported but never abort the loop.
func (a *app) processMessage(ctx context.Context, key core.SessionKey, message string) (*runner.TurnResult, error) {
	fmt.Fprintf(a.out, "\n%s\n", green(fmt.Sprintf("--- Running query: %s ---", message)))
	a.displayState(ctx, key, "State BEFORE processing")

	res, err := a.mesh.Runner().Run(ctx, key, message)
	if a.cfg.Verbose && res != nil {
		for _, ev := range res.Events {
			printEvent(a.out, ev)
		}
	}

	var extErr *core.ExternalLayerError
	switch {
	case err == nil:
	case errors.As(err, &extErr):
		fmt.Fprintf(a.out, "%s %v\n", yellow("Error during agent call:"), extErr.Err)
	default:
		fmt.Fprintf(a.out, "%s %v\n", red("Turn failed:"), err)
	}
	printResult(a.out, res)

	a.displayState(ctx, key, "State AFTER processing")
	return res, err
}

// listSessions prints the sessions of the configured identity, newest first.
func (a *app) listSessions(ctx context.Context) error {
	list, err := a.registry.List(ctx, a.cfg.AppName, a.cfg.UserID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintf(a.out, "No sessions for %s/%s\n", a.cfg.AppName, a.cfg.UserID)
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tCREATED\tUPDATED\tEVENTS")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n",
			s.Key.SessionID,
			s.Created.Local().Format(time.DateTime),
			s.Updated.Local().Format(time.DateTime),
			s.EventCount)
	}
	return tw.Flush()
}

// showState prints the state of the configured session or, without one,
// of the newest session.
func (a *app) showState(ctx context.Context) error {
	key := core.SessionKey{AppName: a.cfg.AppName, UserID: a.cfg.UserID, SessionID: a.cfg.SessionID}
	if key.SessionID == "" {
		list, err := a.registry.List(ctx, key.AppName, key.UserID)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return fmt.Errorf("no sessions for %s/%s: %w", key.AppName, key.UserID, core.ErrNotFound)
		}
		key = list[0].Key
	}

	sess, err := a.registry.Get(ctx, key)
	if err != nil {
		return err
	}
	printState(a.out, "Session "+key.SessionID, sess.StateSnapshot())
	return nil
}

func (a *app) displayState(ctx context.Context, key core.SessionKey, label string) {
	sess, err := a.store.Get(ctx, key)
	if err != nil {
		fmt.Fprintf(a.out, "%s %v\n", red("Error displaying state:"), err)
		return
	}
	printState(a.out, label, sess.StateSnapshot())
}

func newModel(cfg Config) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		if os.Getenv("OPENAI_API_KEY") == "" {
			return nil, errors.New("OPENAI_API_KEY environment variable is required")
		}
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		}), nil
	case "anthropic":
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			return nil, errors.New("ANTHROPIC_API_KEY environment variable is required")
		}
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
		}), nil
	case "scripted":
		return model.NewScriptedModel(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func newLogger(cfg Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:       level,
		Format:      cfg.LogFormat,
		Output:      os.Stderr,
		Component:   "remindctl",
		CustomAttrs: map[string]any{},
	}), nil
}
