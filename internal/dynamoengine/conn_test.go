package dynamoengine_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/roster/internal/dynamoengine"
	"github.com/jacentio/roster/store"
)

// fakeAPI records calls and serves scripted responses.
type fakeAPI struct {
	sequences map[string]int64
	seqTables []string

	statements []*dynamodb.ExecuteStatementInput
	pages      []*dynamodb.ExecuteStatementOutput
	queryErr   error

	transactions []*dynamodb.ExecuteTransactionInput
	txErr        error

	created   []string
	existing  map[string]bool
	described []string
	deleted   []string
	deleteErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{sequences: map[string]int64{}, existing: map[string]bool{}}
}

func (f *fakeAPI) ExecuteStatement(ctx context.Context, in *dynamodb.ExecuteStatementInput, _ ...func(*dynamodb.Options)) (*dynamodb.ExecuteStatementOutput, error) {
	f.statements = append(f.statements, in)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if len(f.pages) == 0 {
		return &dynamodb.ExecuteStatementOutput{}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeAPI) ExecuteTransaction(ctx context.Context, in *dynamodb.ExecuteTransactionInput, _ ...func(*dynamodb.Options)) (*dynamodb.ExecuteTransactionOutput, error) {
	f.transactions = append(f.transactions, in)
	if f.txErr != nil {
		return nil, f.txErr
	}
	return &dynamodb.ExecuteTransactionOutput{}, nil
}

func (f *fakeAPI) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.seqTables = append(f.seqTables, aws.ToString(in.TableName))
	key := in.Key["name"].(*types.AttributeValueMemberS).Value
	f.sequences[key]++
	return &dynamodb.UpdateItemOutput{
		Attributes: map[string]types.AttributeValue{
			"seq": &types.AttributeValueMemberN{Value: strconv.FormatInt(f.sequences[key], 10)},
		},
	}, nil
}

func (f *fakeAPI) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	name := aws.ToString(in.TableName)
	if f.existing[name] {
		return nil, &types.ResourceInUseException{Message: aws.String("exists")}
	}
	f.existing[name] = true
	f.created = append(f.created, name)
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeAPI) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.described = append(f.described, aws.ToString(in.TableName))
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{
			TableName:   in.TableName,
			TableStatus: types.TableStatusActive,
		},
	}, nil
}

func (f *fakeAPI) DeleteTable(ctx context.Context, in *dynamodb.DeleteTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.TableName))
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return &dynamodb.DeleteTableOutput{}, nil
}

func item(id int, name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id":   &types.AttributeValueMemberN{Value: strconv.Itoa(id)},
		"name": &types.AttributeValueMemberS{Value: name},
	}
}

func cancelled(code string) error {
	return &types.TransactionCanceledException{
		Message: aws.String("Transaction cancelled"),
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("None")},
			{Code: aws.String(code)},
		},
	}
}

// --- Dialect ---

func TestDialectStatements(t *testing.T) {
	d := dynamoengine.New(newFakeAPI(), dynamoengine.Options{TablePrefix: "test-"}).Dialect()
	cols := []string{"name", "kind"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"select by id", d.SelectByID("course", cols), `SELECT "id", "name", "kind" FROM "test-course" WHERE "id" = ?`},
		{"select all", d.SelectAll("course", cols), `SELECT "id", "name", "kind" FROM "test-course"`},
		{"insert", d.Insert("course", cols), `INSERT INTO "test-course" VALUE {'id': ?, 'name': ?, 'kind': ?}`},
		{"update", d.Update("course", cols), `UPDATE "test-course" SET "name" = ? SET "kind" = ? WHERE "id" = ? AND attribute_exists("id")`},
		{"delete", d.Delete("course"), `DELETE FROM "test-course" WHERE "id" = ? AND attribute_exists("id")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, tt.got)
			}
		})
	}
	if d.Name() != "dynamodb" {
		t.Errorf("expected dynamodb, got %q", d.Name())
	}
}

// --- Identity allocation ---

func TestInsertIDAllocatesPerTableSequence(t *testing.T) {
	api := newFakeAPI()
	conn := dynamoengine.New(api, dynamoengine.Options{TablePrefix: "p-"})
	ctx := context.Background()
	stmt := conn.Dialect().Insert("student", []string{"name"})

	first, err := conn.InsertID(ctx, "student", stmt, "Ann")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	second, err := conn.InsertID(ctx, "student", stmt, "Bob")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	other, err := conn.InsertID(ctx, "teacher", stmt, "Cy")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if first != 1 || second != 2 || other != 1 {
		t.Errorf("expected ids 1, 2 and 1, got %d, %d and %d", first, second, other)
	}
	for _, table := range api.seqTables {
		if table != "p-"+dynamoengine.DefaultSequenceTable {
			t.Errorf("expected sequence table %q, got %q", "p-"+dynamoengine.DefaultSequenceTable, table)
		}
	}
}

func TestInsertIDBindsIdentityFirst(t *testing.T) {
	api := newFakeAPI()
	conn := dynamoengine.New(api, dynamoengine.Options{})
	ctx := context.Background()

	if _, err := conn.InsertID(ctx, "student", conn.Dialect().Insert("student", []string{"name"}), "Ann"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := conn.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if len(api.transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(api.transactions))
	}
	params := api.transactions[0].TransactStatements[0].Parameters
	if len(params) != 2 {
		t.Fatalf("expected 2 parameters, got %d", len(params))
	}
	id, ok := params[0].(*types.AttributeValueMemberN)
	if !ok || id.Value != "1" {
		t.Errorf("expected identity parameter N(1), got %#v", params[0])
	}
	name, ok := params[1].(*types.AttributeValueMemberS)
	if !ok || name.Value != "Ann" {
		t.Errorf("expected name parameter S(Ann), got %#v", params[1])
	}
}

// --- Transactions ---

func TestWritesAreBufferedUntilCommit(t *testing.T) {
	api := newFakeAPI()
	conn := dynamoengine.New(api, dynamoengine.Options{})
	ctx := context.Background()
	d := conn.Dialect()

	n, err := conn.Exec(ctx, d.Update("student", []string{"name"}), "Anna", int64(1))
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 affected row, got %d", n)
	}
	if _, err := conn.Exec(ctx, d.Delete("student"), int64(2)); err != nil {
		t.Fatalf("exec: %v", err)
	}
	if len(api.transactions) != 0 {
		t.Fatalf("expected no transaction before commit, got %d", len(api.transactions))
	}
	if !conn.InTx() || conn.Pending() != 2 {
		t.Fatalf("expected 2 pending statements in a transaction, got %d (in tx: %v)", conn.Pending(), conn.InTx())
	}

	if err := conn.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(api.transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(api.transactions))
	}
	stmts := api.transactions[0].TransactStatements
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(stmts))
	}
	if got := aws.ToString(stmts[0].Statement); got != d.Update("student", []string{"name"}) {
		t.Errorf("expected update first, got %q", got)
	}
	if conn.InTx() || conn.Pending() != 0 {
		t.Error("expected commit to clear the transaction")
	}
}

func TestCommitWithoutWritesSkipsTransaction(t *testing.T) {
	api := newFakeAPI()
	conn := dynamoengine.New(api, dynamoengine.Options{})
	ctx := context.Background()

	if err := conn.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := conn.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(api.transactions) != 0 {
		t.Errorf("expected no transaction, got %d", len(api.transactions))
	}
}

func TestRollbackDropsBufferedWrites(t *testing.T) {
	api := newFakeAPI()
	conn := dynamoengine.New(api, dynamoengine.Options{})
	ctx := context.Background()

	if _, err := conn.Exec(ctx, conn.Dialect().Delete("student"), int64(1)); err != nil {
		t.Fatalf("exec: %v", err)
	}
	if err := conn.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if err := conn.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(api.transactions) != 0 {
		t.Errorf("expected rolled back writes to be dropped, got %d transactions", len(api.transactions))
	}
}

func TestCloneHasIndependentBuffer(t *testing.T) {
	api := newFakeAPI()
	conn := dynamoengine.New(api, dynamoengine.Options{TablePrefix: "p-"})
	ctx := context.Background()

	if _, err := conn.Exec(ctx, conn.Dialect().Delete("student"), int64(1)); err != nil {
		t.Fatalf("exec: %v", err)
	}
	clone := conn.Clone()
	if clone.InTx() || clone.Pending() != 0 {
		t.Errorf("expected empty clone buffer, got %d pending", clone.Pending())
	}
	if got, want := clone.Dialect().Delete("student"), conn.Dialect().Delete("student"); got != want {
		t.Errorf("expected shared table prefix, got %q want %q", got, want)
	}
	if _, err := clone.NextID(ctx, "student"); err != nil {
		t.Fatalf("next id: %v", err)
	}
	if _, ok := api.sequences["student"]; !ok {
		t.Error("expected clone to use the shared client")
	}
}

func TestCommitRejectsOversizedTransaction(t *testing.T) {
	api := newFakeAPI()
	conn := dynamoengine.New(api, dynamoengine.Options{})
	ctx := context.Background()

	for i := 0; i <= dynamoengine.MaxTransactionStatements; i++ {
		if _, err := conn.Exec(ctx, conn.Dialect().Delete("student"), int64(i+1)); err != nil {
			t.Fatalf("exec: %v", err)
		}
	}
	err := conn.Commit(ctx)
	if !errors.Is(err, dynamoengine.ErrTooManyStatements) {
		t.Errorf("expected ErrTooManyStatements, got %v", err)
	}
	if len(api.transactions) != 0 {
		t.Errorf("expected nothing submitted, got %d transactions", len(api.transactions))
	}
}

func TestCommitMapsCancellationReasons(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"conditional check failed", cancelled("ConditionalCheckFailed"), store.ErrRecordNotFound},
		{"duplicate item", cancelled("DuplicateItem"), store.ErrConstraint},
		{"bare duplicate item", &types.DuplicateItemException{Message: aws.String("dup")}, store.ErrConstraint},
		{"bare conditional check", &types.ConditionalCheckFailedException{Message: aws.String("cond")}, store.ErrRecordNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			api.txErr = tt.err
			conn := dynamoengine.New(api, dynamoengine.Options{})
			ctx := context.Background()

			if _, err := conn.Exec(ctx, conn.Dialect().Delete("student"), int64(1)); err != nil {
				t.Fatalf("exec: %v", err)
			}
			err := conn.Commit(ctx)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("expected original cause to be preserved, got %v", err)
			}
		})
	}
}

func TestCommitPassesThroughOtherErrors(t *testing.T) {
	api := newFakeAPI()
	boom := errors.New("throttled")
	api.txErr = boom
	conn := dynamoengine.New(api, dynamoengine.Options{})
	ctx := context.Background()

	if _, err := conn.Exec(ctx, conn.Dialect().Delete("student"), int64(1)); err != nil {
		t.Fatalf("exec: %v", err)
	}
	err := conn.Commit(ctx)
	if !errors.Is(err, boom) {
		t.Errorf("expected throttled error, got %v", err)
	}
	if errors.Is(err, store.ErrRecordNotFound) || errors.Is(err, store.ErrConstraint) {
		t.Errorf("expected unclassified error, got %v", err)
	}
}

// --- Query ---

func TestQueryFollowsNextTokenAndSortsByIdentity(t *testing.T) {
	api := newFakeAPI()
	api.pages = []*dynamodb.ExecuteStatementOutput{
		{Items: []map[string]types.AttributeValue{item(3, "Cy"), item(1, "Ann")}, NextToken: aws.String("page-2")},
		{Items: []map[string]types.AttributeValue{item(2, "Bob")}},
	}
	conn := dynamoengine.New(api, dynamoengine.Options{})

	rows, err := conn.Query(context.Background(), conn.Dialect().SelectAll("student", []string{"name"}))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(api.statements) != 2 {
		t.Fatalf("expected 2 pages requested, got %d", len(api.statements))
	}
	if got := aws.ToString(api.statements[1].NextToken); got != "page-2" {
		t.Errorf("expected next token %q, got %q", "page-2", got)
	}
	if !aws.ToBool(api.statements[0].ConsistentRead) {
		t.Error("expected consistent reads")
	}

	want := []string{"Ann", "Bob", "Cy"}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rows))
	}
	for i, row := range rows {
		id, err := row.Int64("id")
		if err != nil {
			t.Fatalf("id: %v", err)
		}
		name, err := row.String("name")
		if err != nil {
			t.Fatalf("name: %v", err)
		}
		if id != int64(i+1) || name != want[i] {
			t.Errorf("row %d: expected (%d, %q), got (%d, %q)", i, i+1, want[i], id, name)
		}
	}
}

func TestQueryMarshalsParameters(t *testing.T) {
	api := newFakeAPI()
	conn := dynamoengine.New(api, dynamoengine.Options{})

	if _, err := conn.Query(context.Background(), conn.Dialect().SelectByID("student", []string{"name"}), int64(7)); err != nil {
		t.Fatalf("query: %v", err)
	}
	params := api.statements[0].Parameters
	if len(params) != 1 {
		t.Fatalf("expected 1 parameter, got %d", len(params))
	}
	if n, ok := params[0].(*types.AttributeValueMemberN); !ok || n.Value != "7" {
		t.Errorf("expected N(7), got %#v", params[0])
	}
}

func TestQueryReturnsStorageError(t *testing.T) {
	api := newFakeAPI()
	boom := errors.New("unavailable")
	api.queryErr = boom
	conn := dynamoengine.New(api, dynamoengine.Options{})

	_, err := conn.Query(context.Background(), conn.Dialect().SelectAll("student", nil))
	if !errors.Is(err, boom) {
		t.Errorf("expected storage error, got %v", err)
	}
}

// --- Tables ---

func TestEnsureTablesCreatesMissingTables(t *testing.T) {
	api := newFakeAPI()
	api.existing["p-teacher"] = true
	conn := dynamoengine.New(api, dynamoengine.Options{TablePrefix: "p-", SequenceTable: "seq"})

	if err := conn.EnsureTables(context.Background(), "student", "teacher"); err != nil {
		t.Fatalf("ensure tables: %v", err)
	}
	want := []string{"p-student", "p-seq"}
	if len(api.created) != len(want) {
		t.Fatalf("expected %v created, got %v", want, api.created)
	}
	for i := range want {
		if api.created[i] != want[i] {
			t.Errorf("expected %q, got %q", want[i], api.created[i])
		}
	}
	if len(api.described) != len(want) {
		t.Errorf("expected to wait on %d tables, got %d", len(want), len(api.described))
	}
}

func TestDropTablesJoinsFailures(t *testing.T) {
	api := newFakeAPI()
	api.deleteErr = errors.New("denied")
	conn := dynamoengine.New(api, dynamoengine.Options{TablePrefix: "p-"})

	err := conn.DropTables(context.Background(), "student")
	if !errors.Is(err, api.deleteErr) {
		t.Errorf("expected denied error, got %v", err)
	}
	if len(api.deleted) != 2 {
		t.Errorf("expected 2 delete attempts, got %d", len(api.deleted))
	}
}
