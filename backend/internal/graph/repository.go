package graph

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	apperrors "spoke-graph/backend/pkg/errors"
	"spoke-graph/backend/pkg/logger"
)

const constraintViolationCode = "Neo.ClientError.Schema.ConstraintValidationFailed"

var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ConnectOptions holds the credentials and tuning for a Neo4j connection
type ConnectOptions struct {
	URI      string
	User     string
	Password string
	Database string
	Timeout  time.Duration
}

// Repository handles all Neo4j database operations.
// Nodes are stored under the Nodes label keyed by _key, edges as Edges relationships.
type Repository struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// Connect opens a driver and verifies the server answers.
// An unreachable server yields a nil repository and *errors.ErrStoreUnreachable.
func Connect(ctx context.Context, opts ConnectOptions) (*Repository, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	driver, err := neo4j.NewDriverWithContext(
		opts.URI,
		neo4j.BasicAuth(opts.User, opts.Password, ""),
		func(cfg *neo4j.Config) {
			cfg.SocketConnectTimeout = timeout
		},
	)
	if err != nil {
		return nil, apperrors.NewStoreUnreachable(opts.URI, err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, apperrors.NewStoreUnreachable(opts.URI, err)
	}

	repo := NewRepository(driver)
	repo.database = opts.Database
	return repo, nil
}

// NewRepository creates a new graph repository
func NewRepository(driver neo4j.DriverWithContext) *Repository {
	return &Repository{
		driver: driver,
		logger: logger.Named("graph"),
	}
}

// Database returns the database sessions are opened against ("" is the server default)
func (r *Repository) Database() string {
	return r.database
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

func (r *Repository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database})
}

// EnsureDatabase creates the named database when it does not exist and selects it
// for subsequent sessions. An empty name keeps the server default.
func (r *Repository) EnsureDatabase(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: "system"})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `SHOW DATABASES YIELD name WHERE name = $name RETURN name`, map[string]any{
		"name": name,
	})
	if err != nil {
		return apperrors.NewProvisionFailed("database "+name, err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return apperrors.NewProvisionFailed("database "+name, err)
	}

	if len(records) == 0 {
		res, err := session.Run(ctx, `CREATE DATABASE $name IF NOT EXISTS WAIT`, map[string]any{"name": name})
		if err != nil {
			return apperrors.NewProvisionFailed("database "+name, err)
		}
		if _, err := res.Consume(ctx); err != nil {
			return apperrors.NewProvisionFailed("database "+name, err)
		}
		r.logger.Info("Database created", zap.String("database", name))
	}

	r.database = name
	return nil
}

// schemaObjectName is the constraint (document) or index (edge) that marks a collection
func schemaObjectName(name string, kind CollectionType) string {
	if kind == CollectionTypeEdge {
		return strings.ToLower(name) + "_label_idx"
	}
	return strings.ToLower(name) + "_key_unique"
}

func collectionKind(name string) CollectionType {
	if name == EdgeCollection {
		return CollectionTypeEdge
	}
	return CollectionTypeDocument
}

// HasCollection reports whether the schema object backing a collection exists
func (r *Repository) HasCollection(ctx context.Context, name string) (bool, error) {
	if !identifierPattern.MatchString(name) {
		return false, fmt.Errorf("invalid collection name %q", name)
	}

	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	kind := collectionKind(name)
	query := `SHOW CONSTRAINTS YIELD name WHERE name = $name RETURN count(*) AS total`
	if kind == CollectionTypeEdge {
		query = `SHOW INDEXES YIELD name WHERE name = $name RETURN count(*) AS total`
	}

	result, err := session.Run(ctx, query, map[string]any{"name": schemaObjectName(name, kind)})
	if err != nil {
		return false, apperrors.NewGraphQueryFailed(query, err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return false, apperrors.NewGraphQueryFailed(query, err)
	}
	return getInt64FromRecord(record, "total") > 0, nil
}

// CreateCollection creates the uniqueness constraint on _key for document collections,
// or the relationship index on label for edge collections.
func (r *Repository) CreateCollection(ctx context.Context, name string, kind CollectionType) error {
	if !identifierPattern.MatchString(name) {
		return apperrors.NewProvisionFailed("collection "+name, fmt.Errorf("invalid collection name"))
	}

	var query string
	switch kind {
	case CollectionTypeEdge:
		query = fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR ()-[r:`%s`]-() ON (r.label)",
			schemaObjectName(name, kind), name)
	default:
		query = fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:`%s`) REQUIRE n.%s IS UNIQUE",
			schemaObjectName(name, kind), name, AttrKey)
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return apperrors.NewProvisionFailed("collection "+name, err)
	}
	if _, err := result.Consume(ctx); err != nil {
		return apperrors.NewProvisionFailed("collection "+name, err)
	}

	r.logger.Info("Collection created",
		zap.String("collection", name),
		zap.String("type", string(kind)),
	)
	return nil
}

// InsertNode creates a node. A node that only exists as a placeholder created by an
// earlier edge is filled in; any other existing node with the key is a duplicate.
func (r *Repository) InsertNode(ctx context.Context, doc NodeDocument) error {
	props := flattenProperties(doc.Properties)
	props[AttrKey] = doc.Key
	props[AttrID] = DocumentID(NodeCollection, doc.Key)

	query := `
		OPTIONAL MATCH (existing:Nodes {_key: $key})
		WITH existing
		WHERE existing IS NULL OR existing._stub = true
		MERGE (n:Nodes {_key: $key})
		SET n = $props
		RETURN n._key AS key
	`

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	created, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{
			"key":   doc.Key,
			"props": props,
		})
		if err != nil {
			return false, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return false, err
		}
		return len(records) > 0, nil
	})
	if err != nil {
		if isConstraintViolation(err) {
			return apperrors.NewDuplicateKey(NodeCollection, doc.Key)
		}
		return apperrors.NewGraphQueryFailed("insert node "+doc.Key, err)
	}
	if ok, _ := created.(bool); !ok {
		return apperrors.NewDuplicateKey(NodeCollection, doc.Key)
	}
	return nil
}

// InsertEdge creates an Edges relationship. Missing endpoints are created as
// placeholder nodes so edges may precede the nodes they reference.
func (r *Repository) InsertEdge(ctx context.Context, doc EdgeDocument) error {
	_, fromKey, ok := SplitDocumentID(doc.From)
	if !ok {
		return fmt.Errorf("malformed edge source %q", doc.From)
	}
	_, toKey, ok := SplitDocumentID(doc.To)
	if !ok {
		return fmt.Errorf("malformed edge target %q", doc.To)
	}

	props := flattenProperties(doc.Properties)
	props[AttrFrom] = doc.From
	props[AttrTo] = doc.To

	query := `
		MERGE (a:Nodes {_key: $from})
		ON CREATE SET a._stub = true, a._id = $fromID
		MERGE (b:Nodes {_key: $to})
		ON CREATE SET b._stub = true, b._id = $toID
		CREATE (a)-[e:Edges]->(b)
		SET e = $props
		RETURN elementId(e) AS id
	`

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{
			"from":   fromKey,
			"fromID": doc.From,
			"to":     toKey,
			"toID":   doc.To,
			"props":  props,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return apperrors.NewGraphQueryFailed("insert edge "+doc.From+" -> "+doc.To, err)
	}
	return nil
}

// Query runs a statement in a read transaction and returns every row as a plain map
func (r *Repository) Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	rows, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		out := []map[string]any{}
		for result.Next(ctx) {
			out = append(out, recordToMap(result.Record()))
		}
		if err := result.Err(); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed(query, err)
	}
	return rows.([]map[string]any), nil
}

// Stats counts loaded nodes (placeholders excluded) and edges
func (r *Repository) Stats(ctx context.Context) (*Stats, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := `
		CALL { MATCH (n:Nodes) WHERE n._stub IS NULL RETURN count(n) AS nodes }
		CALL { MATCH ()-[e:Edges]->() RETURN count(e) AS edges }
		RETURN nodes, edges
	`
	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed(query, err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed(query, err)
	}
	return &Stats{
		Nodes: getInt64FromRecord(record, "nodes"),
		Edges: getInt64FromRecord(record, "edges"),
	}, nil
}

// EdgeLabels returns the distinct edge labels present, up to limit
func (r *Repository) EdgeLabels(ctx context.Context, limit int) ([]string, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := `MATCH ()-[e:Edges]->() WHERE e.label IS NOT NULL RETURN DISTINCT e.label AS label ORDER BY label LIMIT $limit`
	result, err := session.Run(ctx, query, map[string]any{"limit": int64(limit)})
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed(query, err)
	}

	labels := []string{}
	for result.Next(ctx) {
		if label := getStringFromRecord(result.Record(), "label"); label != "" {
			labels = append(labels, label)
		}
	}
	if err := result.Err(); err != nil {
		return nil, apperrors.NewGraphQueryFailed(query, err)
	}
	return labels, nil
}

// Describe summarizes the loaded graph for query prompts
func (r *Repository) Describe(ctx context.Context) (string, error) {
	stats, err := r.Stats(ctx)
	if err != nil {
		return "", err
	}
	labels, err := r.EdgeLabels(ctx, 100)
	if err != nil {
		return "", err
	}
	return DescribeSchema(stats, labels), nil
}

func isConstraintViolation(err error) bool {
	var neoErr *neo4j.Neo4jError
	return errors.As(err, &neoErr) && neoErr.Code == constraintViolationCode
}
