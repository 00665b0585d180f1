// Package dynamoengine implements store.Conn over DynamoDB PartiQL.
//
// Reads run immediately through ExecuteStatement. Writes are buffered from the
// first write until Commit, which submits them as one ExecuteTransaction, so a
// unit of work is applied all-or-nothing. Reads issued inside an open
// transaction do not observe its buffered writes.
package dynamoengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/roster/store"
)

// MaxTransactionStatements is the ExecuteTransaction statement limit.
const MaxTransactionStatements = 100

// DefaultSequenceTable holds one identity counter item per mapped table.
const DefaultSequenceTable = "roster_sequences"

// ErrTooManyStatements is returned by Commit when more writes are buffered
// than one DynamoDB transaction accepts.
var ErrTooManyStatements = errors.New("roster: too many statements for one dynamodb transaction")

// API is the subset of the DynamoDB client used by Conn.
type API interface {
	ExecuteStatement(ctx context.Context, params *dynamodb.ExecuteStatementInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ExecuteStatementOutput, error)
	ExecuteTransaction(ctx context.Context, params *dynamodb.ExecuteTransactionInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ExecuteTransactionOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// Options configures a Conn.
type Options struct {
	// TablePrefix is prepended to every mapped table name.
	TablePrefix string

	// SequenceTable names the identity counter table.
	// Default: DefaultSequenceTable
	SequenceTable string

	// Logger receives statement-level debug logs.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Conn is a store.Conn over a DynamoDB client.
type Conn struct {
	api           API
	dialect       Dialect
	sequenceTable string
	logger        *slog.Logger

	inTx    bool
	pending []types.ParameterizedStatement
}

var _ store.Conn = (*Conn)(nil)

// New wraps api in a Conn.
func New(api API, opts Options) *Conn {
	if opts.SequenceTable == "" {
		opts.SequenceTable = DefaultSequenceTable
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Conn{
		api:           api,
		dialect:       Dialect{prefix: opts.TablePrefix},
		sequenceTable: opts.TablePrefix + opts.SequenceTable,
		logger:        opts.Logger,
	}
}

// Clone returns a Conn sharing c's client and tables with an empty write buffer.
func (c *Conn) Clone() *Conn {
	return &Conn{
		api:           c.api,
		dialect:       c.dialect,
		sequenceTable: c.sequenceTable,
		logger:        c.logger,
	}
}

// Dialect returns the PartiQL renderer, bound to the table prefix.
func (c *Conn) Dialect() store.Dialect { return c.dialect }

// InTx reports whether writes are being buffered.
func (c *Conn) InTx() bool { return c.inTx }

// Pending returns the number of buffered write statements.
func (c *Conn) Pending() int { return len(c.pending) }

// Exec buffers a write statement. DynamoDB reports no row count before the
// transaction runs, so every buffered statement counts as one affected row;
// a statement whose condition fails cancels the whole transaction at Commit.
func (c *Conn) Exec(ctx context.Context, stmt string, args ...any) (int64, error) {
	if err := c.buffer(stmt, args); err != nil {
		return 0, err
	}
	return 1, nil
}

// InsertID allocates the next identity for table and buffers stmt with that
// identity bound as its first parameter.
func (c *Conn) InsertID(ctx context.Context, table, stmt string, args ...any) (int64, error) {
	id, err := c.NextID(ctx, table)
	if err != nil {
		return 0, err
	}
	params := make([]any, 0, len(args)+1)
	params = append(params, id)
	params = append(params, args...)
	if err := c.buffer(stmt, params); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Conn) buffer(stmt string, args []any) error {
	params, err := marshalParams(args)
	if err != nil {
		return err
	}
	c.logger.Debug("buffer statement", "stmt", stmt, "pending", len(c.pending)+1)
	c.inTx = true
	c.pending = append(c.pending, types.ParameterizedStatement{
		Statement:  aws.String(stmt),
		Parameters: params,
	})
	return nil
}

// NextID atomically increments and returns the identity counter for table.
func (c *Conn) NextID(ctx context.Context, table string) (int64, error) {
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.sequenceTable),
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: table},
		},
		UpdateExpression:         aws.String("ADD #seq :one"),
		ExpressionAttributeNames: map[string]string{"#seq": "seq"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("next id for %s: %w", table, err)
	}
	seq, ok := out.Attributes["seq"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("next id for %s: sequence attribute missing", table)
	}
	id, err := strconv.ParseInt(seq.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("next id for %s: %w", table, err)
	}
	return id, nil
}

// Query runs a PartiQL select, following NextToken until the result is
// exhausted. Rows carrying an identity column are returned in identity order.
func (c *Conn) Query(ctx context.Context, stmt string, args ...any) ([]store.Row, error) {
	params, err := marshalParams(args)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("query", "stmt", stmt)

	var (
		rows      []store.Row
		nextToken *string
	)
	for {
		out, err := c.api.ExecuteStatement(ctx, &dynamodb.ExecuteStatementInput{
			Statement:      aws.String(stmt),
			Parameters:     params,
			ConsistentRead: aws.Bool(true),
			NextToken:      nextToken,
		})
		if err != nil {
			return nil, classify(err)
		}
		for _, item := range out.Items {
			var row map[string]any
			if err := attributevalue.UnmarshalMap(item, &row); err != nil {
				return nil, fmt.Errorf("unmarshal row: %w", err)
			}
			rows = append(rows, store.Row(row))
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	sortByIdentity(rows)
	return rows, nil
}

// Begin starts buffering writes. An open transaction is joined.
func (c *Conn) Begin(ctx context.Context) error {
	c.inTx = true
	return nil
}

// Commit submits the buffered writes as one transaction.
func (c *Conn) Commit(ctx context.Context) error {
	stmts := c.pending
	c.pending = nil
	c.inTx = false
	if len(stmts) == 0 {
		return nil
	}
	if len(stmts) > MaxTransactionStatements {
		return fmt.Errorf("%w: %d statements", ErrTooManyStatements, len(stmts))
	}
	c.logger.Debug("execute transaction", "statements", len(stmts))
	_, err := c.api.ExecuteTransaction(ctx, &dynamodb.ExecuteTransactionInput{
		TransactStatements: stmts,
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// Rollback drops the buffered writes. Allocated identities are not reused.
func (c *Conn) Rollback(ctx context.Context) error {
	c.pending = nil
	c.inTx = false
	return nil
}

// Close drops any buffered writes. The client itself holds no resources.
func (c *Conn) Close() error {
	return c.Rollback(context.Background())
}

func marshalParams(args []any) ([]types.AttributeValue, error) {
	if len(args) == 0 {
		return nil, nil
	}
	params := make([]types.AttributeValue, len(args))
	for i, arg := range args {
		av, err := attributevalue.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("marshal parameter %d: %w", i+1, err)
		}
		params[i] = av
	}
	return params, nil
}

func sortByIdentity(rows []store.Row) {
	ids := make([]int64, len(rows))
	for i, row := range rows {
		id, err := row.Int64(store.IdentityColumn)
		if err != nil {
			return
		}
		ids[i] = id
	}
	sort.Sort(byIdentity{rows: rows, ids: ids})
}

type byIdentity struct {
	rows []store.Row
	ids  []int64
}

func (b byIdentity) Len() int           { return len(b.rows) }
func (b byIdentity) Less(i, j int) bool { return b.ids[i] < b.ids[j] }
func (b byIdentity) Swap(i, j int) {
	b.rows[i], b.rows[j] = b.rows[j], b.rows[i]
	b.ids[i], b.ids[j] = b.ids[j], b.ids[i]
}
