package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/jacentio/roster/internal/backend"
	"github.com/jacentio/roster/internal/config"
	"github.com/jacentio/roster/internal/telemetry"
	"github.com/jacentio/roster/school"
	"github.com/jacentio/roster/store"
)

const serviceName = "roster"

var errUsage = errors.New("usage: roster [-metrics] TYPE add|list|show|rename|remove [ARGS...]")

// named is satisfied by every school type.
type named interface {
	store.DomainObject
	Name() string
	SetName(name string)
}

func run(ctx context.Context, cfg config.Config, args []string, stdout, stderr io.Writer) (err error) {
	flags := flag.NewFlagSet("roster", flag.ContinueOnError)
	flags.SetOutput(stderr)
	dumpMetrics := flags.Bool("metrics", false, "write store metrics to stderr on exit")
	if err := flags.Parse(args); err != nil {
		return err
	}
	args = flags.Args()
	if len(args) < 2 {
		return errUsage
	}

	logger := cfg.Log.Logger(stderr)

	shutdown, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		if serr := shutdown(context.Background()); serr != nil {
			logger.Warn("telemetry shutdown failed", "error", serr)
		}
	}()

	gatherer := prometheus.NewRegistry()
	metrics, err := store.NewMetrics(gatherer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if *dumpMetrics {
		defer func() {
			err = errors.Join(err, writeMetrics(gatherer, stderr))
		}()
	}

	conn, err := backend.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	reg := store.NewRegistry(conn, store.Config{Logger: logger, Metrics: metrics})
	school.Register(reg)
	store.SetDefault(reg)
	defer func() {
		store.SetDefault(nil)
		err = errors.Join(err, reg.Close())
	}()

	return dispatch(ctx, args[0], args[1], args[2:], stdout)
}

func dispatch(ctx context.Context, typ, verb string, args []string, stdout io.Writer) error {
	switch verb {
	case "add":
		return add(ctx, typ, args, stdout)
	case "list":
		return list(ctx, typ, stdout)
	case "show":
		if len(args) != 1 {
			return errUsage
		}
		return show(ctx, typ, args[0], stdout)
	case "rename":
		if len(args) != 2 {
			return errUsage
		}
		return rename(ctx, typ, args[0], args[1], stdout)
	case "remove":
		if len(args) != 1 {
			return errUsage
		}
		return remove(ctx, typ, args[0], stdout)
	default:
		return fmt.Errorf("unknown command %q: %w", verb, errUsage)
	}
}

func add(ctx context.Context, typ string, args []string, stdout io.Writer) error {
	var (
		obj named
		err error
	)
	switch typ {
	case school.TypeStudent, school.TypeTeacher, string(school.RoleInstructor):
		if len(args) != 1 {
			return errUsage
		}
		obj, err = school.NewUser(typ, args[0])
	case school.TypeCategory:
		if len(args) != 1 {
			return errUsage
		}
		obj = school.NewCategory(args[0])
	case school.TypeCourse:
		if len(args) != 2 {
			return errUsage
		}
		obj, err = school.NewCourse(args[0], args[1])
	default:
		return fmt.Errorf("%w: %q", store.ErrUnknownMappedType, typ)
	}
	if err != nil {
		return err
	}

	uow := store.NewUnitOfWork(store.Default())
	if err := uow.RegisterNew(obj); err != nil {
		return err
	}
	if err := uow.Commit(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "added %s %d\n", obj.EntityType(), obj.ID())
	return nil
}

func list(ctx context.Context, typ string, stdout io.Writer) error {
	objs, err := store.Default().LoadAll(ctx, typ)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, obj := range objs {
		writeRow(w, obj)
	}
	return w.Flush()
}

func show(ctx context.Context, typ, rawID string, stdout io.Writer) error {
	obj, err := load(ctx, typ, rawID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	writeRow(w, obj)
	return w.Flush()
}

func rename(ctx context.Context, typ, rawID, name string, stdout io.Writer) error {
	obj, err := load(ctx, typ, rawID)
	if err != nil {
		return err
	}
	obj.SetName(name)
	if obj.Status() != store.StatusDirty {
		fmt.Fprintf(stdout, "%s %d unchanged\n", typ, obj.ID())
		return nil
	}

	uow := store.NewUnitOfWork(store.Default())
	if err := uow.RegisterDirty(obj); err != nil {
		return err
	}
	if err := uow.Commit(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "renamed %s %d\n", typ, obj.ID())
	return nil
}

func remove(ctx context.Context, typ, rawID string, stdout io.Writer) error {
	obj, err := load(ctx, typ, rawID)
	if err != nil {
		return err
	}
	uow := store.NewUnitOfWork(store.Default())
	if err := uow.RegisterRemoved(obj); err != nil {
		return err
	}
	if err := uow.Commit(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "removed %s %d\n", typ, obj.ID())
	return nil
}

func load(ctx context.Context, typ, rawID string) (named, error) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid id %q: %w", rawID, err)
	}
	obj, err := store.Default().Load(ctx, typ, id)
	if err != nil {
		return nil, err
	}
	n, ok := obj.(named)
	if !ok {
		return nil, fmt.Errorf("%s %d has no name", typ, id)
	}
	return n, nil
}

func writeRow(w io.Writer, obj store.DomainObject) {
	switch o := obj.(type) {
	case *school.Teacher:
		fmt.Fprintf(w, "%d\t%s\t%s\n", o.ID(), o.Name(), o.Role())
	case *school.Course:
		fmt.Fprintf(w, "%d\t%s\t%s\n", o.ID(), o.Name(), o.Kind())
	case named:
		fmt.Fprintf(w, "%d\t%s\n", o.ID(), o.Name())
	default:
		fmt.Fprintf(w, "%d\n", obj.ID())
	}
}

func writeMetrics(gatherer prometheus.Gatherer, w io.Writer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
