package e2e

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pgstore "github.com/nidhogg/weatherbot/internal/store"
	"github.com/nidhogg/weatherbot/internal/weather"
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		fmt.Println("skipping e2e tests in short mode")
		os.Exit(0)
	}

	ctx := context.Background()
	testLogger, _ = zap.NewDevelopment()

	// 1. Start PostgreSQL
	pgDSN, pgCleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
		os.Exit(1)
	}

	testPGStore, err = pgstore.New(ctx, pgDSN, testLogger)
	if err != nil {
		pgCleanup()
		fmt.Fprintf(os.Stderr, "pg store: %v\n", err)
		os.Exit(1)
	}

	// Run migrations
	if err := testPGStore.Migrate(ctx, "../../migrations"); err != nil {
		testPGStore.Close()
		pgCleanup()
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	// 2. Start Redis
	redisURL, redisCleanup, err := startRedis(ctx)
	if err != nil {
		testPGStore.Close()
		pgCleanup()
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	testRedisURL = redisURL

	code := m.Run()

	redisCleanup()
	testPGStore.Close()
	pgCleanup()
	os.Exit(code)
}

// failingArchive rejects every save.
type failingArchive struct{}

func (failingArchive) SaveFeedback(context.Context, *pgstore.Feedback) error {
	return errors.New("archive offline")
}

func TestConversationFlow(t *testing.T) {
	owm := newFakeOWM(t)
	bot, _ := setupBot(t, owm.Client(), testPGStore)

	t.Run("Help", func(t *testing.T) {
		bot.Reset()
		bot.Say("c1", "/help")
		sent := bot.Sent()
		require.Len(t, sent, 1)
		assert.Contains(t, sent[0], "This is weather bot ve2e speaking.")
		assert.Contains(t, sent[0], "/weather <city>")
	})

	t.Run("WeatherWithArgument", func(t *testing.T) {
		bot.Reset()
		bot.Say("c1", "/weather Lisbon")
		require.Len(t, bot.Sent(), 1)
		assert.Equal(t, "c1: Current weather in **Lisbon, XX**: clear sky, 19 °C. ☀️", bot.Last())
	})

	t.Run("ForecastAfterQuestion", func(t *testing.T) {
		bot.Reset()
		bot.Say("c1", "/forecast")
		assert.Equal(t, "c1: For which city would you like the weather forecast?", bot.Last())

		bot.Say("c1", "  Porto  ")
		last := bot.Last()
		assert.True(t, strings.HasPrefix(last, "c1: 5-day forecast for **Porto, XX**:"), last)
		assert.Contains(t, last, "**Monday:** light rain, between 11 °C and 16 °C.")
		assert.Contains(t, last, "**Tuesday:** few clouds, around 13 °C.")
		assert.Equal(t, 2, strings.Count(last, "\n**"))
	})

	t.Run("ProviderFailure", func(t *testing.T) {
		bot.Reset()
		bot.Say("c1", "/weather Atlantis")
		assert.Equal(t, `c1: Oops. Something went wrong with the weather API: "weather API error 404: city not found"`, bot.Last())
	})

	t.Run("PendingIsPerConversation", func(t *testing.T) {
		bot.Reset()
		bot.Say("c1", "/weather")
		bot.Say("c2", "Madrid")
		require.Len(t, bot.Sent(), 1, "c2 has no pending request and plain text is ignored")

		bot.Say("c1", "Madrid")
		assert.Equal(t, "c1: Current weather in **Madrid, XX**: clear sky, 19 °C. ☀️", bot.Last())
	})

	t.Run("FeedbackArchivedAndRelayed", func(t *testing.T) {
		bot.Reset()
		bot.Say("c3", "/feedback please add wind speed")
		sent := bot.Sent()
		require.Len(t, sent, 2)
		assert.Equal(t, "dev: Feedback from user \"tester\":\n\"please add wind speed\"", sent[0])
		assert.Equal(t, "c3: Thank you for your feedback.", sent[1])

		items, err := testPGStore.ListFeedback(context.Background(), 10)
		require.NoError(t, err)
		var found bool
		for _, fb := range items {
			if fb.Text == "please add wind speed" {
				found = true
				assert.Equal(t, "test:c3", fb.Conversation)
				assert.Equal(t, "u-c3", fb.SenderID)
				assert.NotEmpty(t, fb.ID)
			}
		}
		assert.True(t, found, "feedback should be archived")
	})
}

func TestFeedbackArchiveFailureStillThanks(t *testing.T) {
	owm := newFakeOWM(t)
	bot, _ := setupBot(t, owm.Client(), failingArchive{})

	bot.Say("c1", "/feedback")
	bot.Say("c1", "works offline too")
	assert.Equal(t, "c1: Thank you for your feedback.", bot.Last())
}

func TestFeedbackStoreOrdering(t *testing.T) {
	ctx := context.Background()
	first := &pgstore.Feedback{Conversation: "rest:order", SenderID: "a", Text: "first"}
	require.NoError(t, testPGStore.SaveFeedback(ctx, first))
	time.Sleep(10 * time.Millisecond)
	second := &pgstore.Feedback{Conversation: "rest:order", SenderID: "b", Text: "second"}
	require.NoError(t, testPGStore.SaveFeedback(ctx, second))

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.CreatedAt.IsZero())

	items, err := testPGStore.ListFeedback(ctx, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "second", items[0].Text, "newest first")
	assert.Equal(t, "first", items[1].Text)
}

func TestWeatherCache(t *testing.T) {
	ctx := context.Background()
	rdb, err := weather.NewRedisClient(ctx, testRedisURL)
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.FlushDB(ctx).Err())

	owm := newFakeOWM(t)
	cached := weather.NewCachedProvider(owm.Client(), rdb, time.Minute, "en", testLogger)

	t.Run("HitAfterMiss", func(t *testing.T) {
		before := owm.Requests()
		a, err := cached.Current(ctx, "Oslo")
		require.NoError(t, err)
		b, err := cached.Current(ctx, " oslo ")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Equal(t, before+1, owm.Requests(), "second lookup should be served from Redis")
	})

	t.Run("ForecastCachedSeparately", func(t *testing.T) {
		before := owm.Requests()
		fc, err := cached.Forecast(ctx, "Oslo")
		require.NoError(t, err)
		require.Len(t, fc.Days, 2)
		_, err = cached.Forecast(ctx, "Oslo")
		require.NoError(t, err)
		assert.Equal(t, before+1, owm.Requests())
	})

	t.Run("ErrorsNotCached", func(t *testing.T) {
		before := owm.Requests()
		_, err := cached.Current(ctx, "Atlantis")
		var apiErr *weather.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 404, apiErr.StatusCode)

		_, err = cached.Current(ctx, "Atlantis")
		require.Error(t, err)
		assert.Equal(t, before+2, owm.Requests())
	})

	t.Run("ScopeSeparatesEntries", func(t *testing.T) {
		other := weather.NewCachedProvider(owm.Client(), rdb, time.Minute, "de", testLogger)
		before := owm.Requests()
		_, err := other.Current(ctx, "Oslo")
		require.NoError(t, err)
		assert.Equal(t, before+1, owm.Requests())
	})
}
