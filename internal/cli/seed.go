package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fastdata/cepbridge/common/logging"
	"github.com/fastdata/cepbridge/common/messaging"
	natsclient "github.com/fastdata/cepbridge/common/messaging/nats"
	"github.com/fastdata/cepbridge/internal/models"
)

// SeedOptions controls synthetic change generation.
type SeedOptions struct {
	Count       int
	Types       []string
	Attribute   string
	Entities    int
	Min, Max    float64
	Seed        int64
	Concurrency int
	Interval    time.Duration
}

// GenerateChanges builds opts.Count attribute changes with ids of the form
// <Type><n>, n in [1, opts.Entities]. The same seed yields the same changes.
func GenerateChanges(opts SeedOptions, now time.Time) []models.AttributeChange {
	faker := gofakeit.New(opts.Seed)
	changes := make([]models.AttributeChange, 0, opts.Count)
	for i := 0; i < opts.Count; i++ {
		entityType := faker.RandomString(opts.Types)
		value := faker.Float64Range(opts.Min, opts.Max)
		changes = append(changes, models.AttributeChange{
			EntityType:    entityType,
			EntityID:      entityType + strconv.Itoa(faker.Number(1, opts.Entities)),
			AttributeName: opts.Attribute,
			Value:         json.RawMessage(strconv.FormatFloat(value, 'f', 2, 64)),
			ObservedAt:    now.Add(time.Duration(i) * time.Millisecond).UTC(),
		})
	}
	return changes
}

// PublishChanges publishes changes on subject with at most
// opts.Concurrency publishes in flight. It returns the number published.
func PublishChanges(ctx context.Context, pub messaging.Publisher, subject string, changes []models.AttributeChange, opts SeedOptions) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}

	var sent atomic.Int64
	for _, change := range changes {
		data, err := json.Marshal(change)
		if err != nil {
			return int(sent.Load()), fmt.Errorf("failed to marshal change: %w", err)
		}
		g.Go(func() error {
			if err := pub.Publish(gctx, subject, data); err != nil {
				return fmt.Errorf("publish %s/%s: %w", change.EntityType, change.EntityID, err)
			}
			sent.Add(1)
			return nil
		})

		if opts.Interval > 0 {
			select {
			case <-gctx.Done():
			case <-time.After(opts.Interval):
			}
		}
		if gctx.Err() != nil {
			break
		}
	}

	err := g.Wait()
	return int(sent.Load()), err
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Publish synthetic attribute changes on the context feed",
	Long: `Generate fake context attribute changes and publish them on NATS so
statements can be exercised without a real context broker.`,
	Example: `  cepctl seed --count 500 --types Room,Car --attribute temperature
  cepctl seed --nats nats://broker:4222 --entities 3 --interval 50ms`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, natsURL, subject, err := seedFlags(cmd)
		if err != nil {
			return err
		}

		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = natsURL
		natsCfg.Name = "cepctl-seed"
		natsCfg.MaxReconnects = 0
		natsCfg.Logger = logging.Discard().Logger
		conn, err := natsclient.NewClient(natsCfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		out := cmd.OutOrStdout()
		info(out, "Publishing %d changes to %s on %s", opts.Count, subject, natsURL)

		changes := GenerateChanges(opts, time.Now())
		start := time.Now()
		sent, err := PublishChanges(cmd.Context(), conn, subject, changes, opts)
		if err != nil {
			return fmt.Errorf("seeding stopped after %d changes: %w", sent, err)
		}
		if err := conn.Drain(); err != nil {
			return fmt.Errorf("failed to flush publishes: %w", err)
		}

		success(out, "Published %d changes in %s", sent, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func seedFlags(cmd *cobra.Command) (SeedOptions, string, string, error) {
	f := cmd.Flags()
	count, _ := f.GetInt("count")
	types, _ := f.GetString("types")
	attribute, _ := f.GetString("attribute")
	entities, _ := f.GetInt("entities")
	minV, _ := f.GetFloat64("min")
	maxV, _ := f.GetFloat64("max")
	seed, _ := f.GetInt64("seed")
	concurrency, _ := f.GetInt("concurrency")
	interval, _ := f.GetDuration("interval")
	natsURL, _ := f.GetString("nats")
	subject, _ := f.GetString("subject")

	var typeList []string
	for _, t := range strings.Split(types, ",") {
		if t = strings.TrimSpace(t); t != "" {
			typeList = append(typeList, t)
		}
	}

	switch {
	case count <= 0:
		return SeedOptions{}, "", "", fmt.Errorf("--count must be positive")
	case len(typeList) == 0:
		return SeedOptions{}, "", "", fmt.Errorf("--types must name at least one entity type")
	case attribute == "":
		return SeedOptions{}, "", "", fmt.Errorf("--attribute is required")
	case entities <= 0:
		return SeedOptions{}, "", "", fmt.Errorf("--entities must be positive")
	case minV > maxV:
		return SeedOptions{}, "", "", fmt.Errorf("--min must not exceed --max")
	}

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if natsURL == "" && cfg != nil {
		natsURL = cfg.NATSURL
	}
	if natsURL == "" {
		natsURL = natsclient.DefaultConfig().URL
	}
	if subject == "" && cfg != nil {
		subject = cfg.Subject
	}
	if subject == "" {
		subject = messaging.SubjectAttributeChanged
	}

	return SeedOptions{
		Count:       count,
		Types:       typeList,
		Attribute:   attribute,
		Entities:    entities,
		Min:         minV,
		Max:         maxV,
		Seed:        seed,
		Concurrency: concurrency,
		Interval:    interval,
	}, natsURL, subject, nil
}

func init() {
	f := seedCmd.Flags()
	f.String("nats", "", "NATS server URL (default: nats://127.0.0.1:4222)")
	f.String("subject", "", "feed subject (default: "+messaging.SubjectAttributeChanged+")")
	f.Int("count", 100, "number of changes to publish")
	f.String("types", "Room", "comma-separated entity types")
	f.String("attribute", "temperature", "attribute name")
	f.Int("entities", 5, "distinct entities per type")
	f.Float64("min", 15, "minimum value")
	f.Float64("max", 35, "maximum value")
	f.Int64("seed", 0, "random seed (default: time based)")
	f.Int("concurrency", 8, "publishes in flight")
	f.Duration("interval", 0, "pause between publishes")
}
