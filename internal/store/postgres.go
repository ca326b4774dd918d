package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/voyagen/channelfold/internal/models"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.ParseConfig: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// --- sources ---

func (p *Postgres) CreateOrGetSource(ctx context.Context, name, url, userAgent string) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO sources (name, url, user_agent, enabled)
		 VALUES ($1, $2, NULLIF($3,''), true)
		 ON CONFLICT (name) DO UPDATE SET url = EXCLUDED.url, user_agent = EXCLUDED.user_agent
		 RETURNING id`,
		name, url, userAgent,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("CreateOrGetSource: %w", err)
	}
	return id, nil
}

func (p *Postgres) UpdateSourceLastUpdated(ctx context.Context, sourceID int64) error {
	_, err := p.pool.Exec(ctx, `UPDATE sources SET last_updated = NOW() WHERE id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("UpdateSourceLastUpdated: %w", err)
	}
	return nil
}

const sourceColumns = `id, name, url, COALESCE(user_agent, ''), enabled, last_updated, created_at`

func scanSource(row pgx.Row) (*models.Source, error) {
	var s models.Source
	if err := row.Scan(&s.ID, &s.Name, &s.URL, &s.UserAgent, &s.Enabled, &s.LastUpdated, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *Postgres) ListSources(ctx context.Context) ([]models.Source, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ListSources: %w", err)
	}
	defer rows.Close()

	var out []models.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("ListSources scan: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (p *Postgres) GetSourceByID(ctx context.Context, sourceID int64) (*models.Source, error) {
	s, err := scanSource(p.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, sourceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetSourceByID: %w", err)
	}
	return s, nil
}

func (p *Postgres) UpdateSource(ctx context.Context, sourceID int64, fields SourceUpdate) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE sources SET
		   name = COALESCE($2, name),
		   url = COALESCE($3, url),
		   user_agent = COALESCE(NULLIF($4, ''), user_agent),
		   enabled = COALESCE($5, enabled)
		 WHERE id = $1`,
		sourceID, fields.Name, fields.URL, fields.UserAgent, fields.Enabled,
	)
	if err != nil {
		return fmt.Errorf("UpdateSource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteSource(ctx context.Context, sourceID int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM sources WHERE id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("DeleteSource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- channels ---

func (p *Postgres) SaveChannels(ctx context.Context, sourceID int64, channels []models.ChannelAggregate) (SaveResult, error) {
	var res SaveResult
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	keepIDs := make([]string, 0, len(channels))
	var streamRows [][]any
	for i := range channels {
		ch := &channels[i]
		ch.SourceID = sourceID
		err := tx.QueryRow(ctx,
			`INSERT INTO channels (id, source_id, key, name, tvg_id, logo, group_name, selected, position)
			 VALUES ($1, $2, $3, $4, NULLIF($5,''), NULLIF($6,''), NULLIF($7,''), $8, $9)
			 ON CONFLICT (source_id, key) DO UPDATE SET
			   tvg_id = EXCLUDED.tvg_id, logo = EXCLUDED.logo,
			   group_name = EXCLUDED.group_name, position = EXCLUDED.position
			 RETURNING id, name, selected`,
			ch.ID, sourceID, ch.Key, ch.Name, ch.TvgID, ch.Logo, ch.Group, ch.Selected, ch.Position,
		).Scan(&ch.ID, &ch.Name, &ch.Selected)
		if err != nil {
			return res, fmt.Errorf("upsert channel %q: %w", ch.Key, err)
		}
		keepIDs = append(keepIDs, ch.ID)
		for j, s := range ch.Streams {
			streamRows = append(streamRows, []any{s.ID, ch.ID, s.URL, s.Name, s.OriginalTitle, nullIfEmpty(s.Resolution), j})
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM streams WHERE channel_id = ANY($1)`, keepIDs); err != nil {
		return res, fmt.Errorf("delete streams: %w", err)
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"streams"},
		[]string{"id", "channel_id", "url", "name", "original_title", "resolution", "position"},
		pgx.CopyFromRows(streamRows))
	if err != nil {
		return res, fmt.Errorf("copy streams: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM channels WHERE source_id = $1 AND NOT (id = ANY($2))`, sourceID, keepIDs)
	if err != nil {
		return res, fmt.Errorf("remove stale channels: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}

	res.Channels = len(channels)
	res.Streams = int(n)
	res.Removed = tag.RowsAffected()
	return res, nil
}

const channelColumns = `id, source_id, key, name, COALESCE(tvg_id, ''), COALESCE(logo, ''), COALESCE(group_name, ''), selected, position`

func scanChannel(row pgx.Row) (models.ChannelAggregate, error) {
	var ch models.ChannelAggregate
	err := row.Scan(&ch.ID, &ch.SourceID, &ch.Key, &ch.Name, &ch.TvgID, &ch.Logo, &ch.Group, &ch.Selected, &ch.Position)
	ch.Streams = []models.StreamVariant{}
	return ch, err
}

// whereClause builds the WHERE clause for filter; args are numbered from 1.
func whereClause(filter ChannelFilter, args []any) (string, []any) {
	var conds []string
	if filter.SourceID != nil {
		args = append(args, *filter.SourceID)
		conds = append(conds, fmt.Sprintf("source_id = $%d", len(args)))
	}
	if filter.Selected != nil {
		args = append(args, *filter.Selected)
		conds = append(conds, fmt.Sprintf("selected = $%d", len(args)))
	}
	if filter.Group != "" {
		args = append(args, filter.Group)
		conds = append(conds, fmt.Sprintf("group_name = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func (p *Postgres) ListChannels(ctx context.Context, filter ChannelFilter) ([]models.ChannelAggregate, int, error) {
	where, args := whereClause(filter, nil)

	var total int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM channels`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListChannels count: %w", err)
	}

	args = append(args, clampLimit(filter.Limit), filter.Offset)
	q := fmt.Sprintf(`SELECT %s FROM channels%s ORDER BY source_id, position LIMIT $%d OFFSET $%d`,
		channelColumns, where, len(args)-1, len(args))
	channels, err := p.queryChannels(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListChannels: %w", err)
	}
	return channels, total, nil
}

func (p *Postgres) ListChannelsBySource(ctx context.Context, sourceID int64) ([]models.ChannelAggregate, error) {
	channels, err := p.queryChannels(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE source_id = $1 ORDER BY position`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("ListChannelsBySource: %w", err)
	}
	return channels, nil
}

func (p *Postgres) GetChannelByID(ctx context.Context, channelID string) (*models.ChannelAggregate, error) {
	channels, err := p.queryChannels(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, channelID)
	if err != nil {
		return nil, fmt.Errorf("GetChannelByID: %w", err)
	}
	if len(channels) == 0 {
		return nil, ErrNotFound
	}
	return &channels[0], nil
}

// queryChannels runs q and attaches the streams of every returned channel.
func (p *Postgres) queryChannels(ctx context.Context, q string, args ...any) ([]models.ChannelAggregate, error) {
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	channels := []models.ChannelAggregate{}
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		channels = append(channels, ch)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := p.attachStreams(ctx, channels); err != nil {
		return nil, err
	}
	return channels, nil
}

func (p *Postgres) attachStreams(ctx context.Context, channels []models.ChannelAggregate) error {
	if len(channels) == 0 {
		return nil
	}
	index := make(map[string]int, len(channels))
	ids := make([]string, len(channels))
	for i, ch := range channels {
		index[ch.ID] = i
		ids[i] = ch.ID
	}

	rows, err := p.pool.Query(ctx,
		`SELECT id, channel_id, url, name, original_title, COALESCE(resolution, '')
		 FROM streams WHERE channel_id = ANY($1) ORDER BY channel_id, position`, ids)
	if err != nil {
		return fmt.Errorf("streams: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s models.StreamVariant
		var channelID string
		if err := rows.Scan(&s.ID, &channelID, &s.URL, &s.Name, &s.OriginalTitle, &s.Resolution); err != nil {
			return fmt.Errorf("streams scan: %w", err)
		}
		i := index[channelID]
		channels[i].Streams = append(channels[i].Streams, s)
	}
	return rows.Err()
}

func (p *Postgres) UpdateChannel(ctx context.Context, channelID string, fields ChannelUpdate) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE channels SET name = COALESCE($2, name), selected = COALESCE($3, selected) WHERE id = $1`,
		channelID, fields.Name, fields.Selected,
	)
	if err != nil {
		return fmt.Errorf("UpdateChannel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SetChannelsSelected(ctx context.Context, channelIDs []string, selected bool) (int64, error) {
	tag, err := p.pool.Exec(ctx,
		`UPDATE channels SET selected = $2 WHERE id = ANY($1) AND selected <> $2`, channelIDs, selected)
	if err != nil {
		return 0, fmt.Errorf("SetChannelsSelected: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) RenameChannels(ctx context.Context, names map[string]string) error {
	if len(names) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for id, name := range names {
		batch.Queue(`UPDATE channels SET name = $2 WHERE id = $1`, id, name)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("RenameChannels: %w", err)
	}
	return nil
}

// --- embeddings ---

func (p *Postgres) ListChannelsWithoutEmbeddings(ctx context.Context, sourceID int64, limit int) ([]models.ChannelAggregate, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+channelColumns+` FROM channels
		 WHERE source_id = $1 AND embedding IS NULL ORDER BY position LIMIT $2`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("ListChannelsWithoutEmbeddings: %w", err)
	}
	defer rows.Close()
	var out []models.ChannelAggregate
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("ListChannelsWithoutEmbeddings scan: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (p *Postgres) StoreEmbeddings(ctx context.Context, channelIDs []string, embeddings [][]float32) error {
	if len(channelIDs) != len(embeddings) {
		return fmt.Errorf("StoreEmbeddings: %d ids for %d embeddings", len(channelIDs), len(embeddings))
	}
	batch := &pgx.Batch{}
	for i, id := range channelIDs {
		batch.Queue(`UPDATE channels SET embedding = $2 WHERE id = $1`, id, pgvector.NewVector(embeddings[i]))
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("StoreEmbeddings: %w", err)
	}
	return nil
}

func (p *Postgres) SemanticSearch(ctx context.Context, queryVec []float32, filter ChannelFilter) ([]SemanticResult, error) {
	args := []any{pgvector.NewVector(queryVec)}
	where, args := whereClause(filter, args)
	if where == "" {
		where = " WHERE embedding IS NOT NULL"
	} else {
		where += " AND embedding IS NOT NULL"
	}
	args = append(args, clampLimit(filter.Limit))
	q := fmt.Sprintf(`SELECT %s, 1 - (embedding <=> $1) AS similarity FROM channels%s ORDER BY embedding <=> $1 LIMIT $%d`,
		channelColumns, where, len(args))

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("SemanticSearch: %w", err)
	}
	var results []SemanticResult
	for rows.Next() {
		var r SemanticResult
		ch := &r.ChannelAggregate
		if err := rows.Scan(&ch.ID, &ch.SourceID, &ch.Key, &ch.Name, &ch.TvgID, &ch.Logo, &ch.Group, &ch.Selected, &ch.Position, &r.Similarity); err != nil {
			rows.Close()
			return nil, fmt.Errorf("SemanticSearch scan: %w", err)
		}
		ch.Streams = []models.StreamVariant{}
		results = append(results, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SemanticSearch: %w", err)
	}

	channels := make([]models.ChannelAggregate, len(results))
	for i := range results {
		channels[i] = results[i].ChannelAggregate
	}
	if err := p.attachStreams(ctx, channels); err != nil {
		return nil, err
	}
	for i := range results {
		results[i].ChannelAggregate = channels[i]
	}
	return results, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
