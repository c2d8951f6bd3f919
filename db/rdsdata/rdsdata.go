// Package rdsdata implements the database handle on top of the Amazon RDS
// Data API. There is no persistent connection: every statement is a single
// HTTPS request, and transactions are identified by an ID returned by the
// service.
package rdsdata

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rdsdata/types"

	dbtypes "go.hackfix.me/dbmigrate/db/types"
)

// Client is the subset of the RDS Data API client used by DB.
type Client interface {
	ExecuteStatement(ctx context.Context, params *rdsdata.ExecuteStatementInput,
		optFns ...func(*rdsdata.Options)) (*rdsdata.ExecuteStatementOutput, error)
	BeginTransaction(ctx context.Context, params *rdsdata.BeginTransactionInput,
		optFns ...func(*rdsdata.Options)) (*rdsdata.BeginTransactionOutput, error)
	CommitTransaction(ctx context.Context, params *rdsdata.CommitTransactionInput,
		optFns ...func(*rdsdata.Options)) (*rdsdata.CommitTransactionOutput, error)
	RollbackTransaction(ctx context.Context, params *rdsdata.RollbackTransactionInput,
		optFns ...func(*rdsdata.Options)) (*rdsdata.RollbackTransactionOutput, error)
}

var _ Client = (*rdsdata.Client)(nil)

// Config identifies the target database.
type Config struct {
	// ResourceARN is the ARN of the Aurora cluster.
	ResourceARN string
	// SecretARN is the ARN of the Secrets Manager secret holding the database
	// credentials.
	SecretARN string
	// Database is the name of the database on the cluster.
	Database string
	// EngineMode is the SQL engine of the cluster: "postgres" or "mysql".
	EngineMode string
}

// DB is a database handle backed by the RDS Data API.
type DB struct {
	client Client
	cfg    Config
}

var _ dbtypes.DB = (*DB)(nil)

// Open creates a DB using the default AWS configuration chain of the
// execution environment (environment variables, shared config, or the
// function's execution role).
func Open(ctx context.Context, cfg Config) (*DB, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed loading AWS configuration: %w", err)
	}

	return New(rdsdata.NewFromConfig(awsCfg), cfg)
}

// New creates a DB using the given Data API client.
func New(client Client, cfg Config) (*DB, error) {
	if client == nil {
		return nil, errors.New("RDS Data API client is required")
	}
	if cfg.ResourceARN == "" {
		return nil, errors.New("RDS resource ARN is required")
	}
	if cfg.SecretARN == "" {
		return nil, errors.New("RDS secret ARN is required")
	}
	if cfg.EngineMode == "" {
		cfg.EngineMode = "postgres"
	}

	return &DB{client: client, cfg: cfg}, nil
}

// Exec implements dbtypes.Executor.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	out, err := d.execute(ctx, "", query, args)
	if err != nil {
		return 0, err
	}
	return out.NumberOfRecordsUpdated, nil
}

// Query implements dbtypes.Executor.
func (d *DB) Query(ctx context.Context, query string, args ...any) ([]dbtypes.Row, error) {
	out, err := d.execute(ctx, "", query, args)
	if err != nil {
		return nil, err
	}
	return convertRecords(out.Records)
}

// Placeholder returns a named parameter marker. The Data API uses the same
// syntax for every engine.
func (d *DB) Placeholder(n int) string {
	return ":" + paramName(n)
}

// Begin starts a new transaction on the cluster.
func (d *DB) Begin(ctx context.Context) (dbtypes.Tx, error) {
	out, err := d.client.BeginTransaction(ctx, &rdsdata.BeginTransactionInput{
		ResourceArn: aws.String(d.cfg.ResourceARN),
		SecretArn:   aws.String(d.cfg.SecretARN),
		Database:    d.database(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed starting transaction: %w", err)
	}
	if out.TransactionId == nil {
		return nil, errors.New("failed starting transaction: no transaction ID returned")
	}

	return &tx{db: d, id: *out.TransactionId}, nil
}

// Engine implements dbtypes.Executor.
func (d *DB) Engine() string {
	return d.cfg.EngineMode
}

// Close is a no-op, since the Data API is connectionless.
func (d *DB) Close() error {
	return nil
}

func (d *DB) database() *string {
	if d.cfg.Database == "" {
		return nil
	}
	return aws.String(d.cfg.Database)
}

func (d *DB) execute(
	ctx context.Context, txID, query string, args []any,
) (*rdsdata.ExecuteStatementOutput, error) {
	params, err := convertArgs(args)
	if err != nil {
		return nil, err
	}

	in := &rdsdata.ExecuteStatementInput{
		ResourceArn: aws.String(d.cfg.ResourceARN),
		SecretArn:   aws.String(d.cfg.SecretARN),
		Database:    d.database(),
		Sql:         aws.String(query),
		Parameters:  params,
	}
	if txID != "" {
		in.TransactionId = aws.String(txID)
	}

	out, err := d.client.ExecuteStatement(ctx, in)
	if err != nil {
		return nil, err //nolint:wrapcheck // Wrapped by the caller.
	}

	return out, nil
}

type tx struct {
	db *DB
	id string
}

func (t *tx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	out, err := t.db.execute(ctx, t.id, query, args)
	if err != nil {
		return 0, err
	}
	return out.NumberOfRecordsUpdated, nil
}

func (t *tx) Query(ctx context.Context, query string, args ...any) ([]dbtypes.Row, error) {
	out, err := t.db.execute(ctx, t.id, query, args)
	if err != nil {
		return nil, err
	}
	return convertRecords(out.Records)
}

func (t *tx) Placeholder(n int) string {
	return t.db.Placeholder(n)
}

func (t *tx) Engine() string {
	return t.db.Engine()
}

func (t *tx) Commit(ctx context.Context) error {
	_, err := t.db.client.CommitTransaction(ctx, &rdsdata.CommitTransactionInput{
		ResourceArn:   aws.String(t.db.cfg.ResourceARN),
		SecretArn:     aws.String(t.db.cfg.SecretARN),
		TransactionId: aws.String(t.id),
	})
	if err != nil {
		return fmt.Errorf("failed committing transaction %s: %w", t.id, err)
	}
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	_, err := t.db.client.RollbackTransaction(ctx, &rdsdata.RollbackTransactionInput{
		ResourceArn:   aws.String(t.db.cfg.ResourceARN),
		SecretArn:     aws.String(t.db.cfg.SecretARN),
		TransactionId: aws.String(t.id),
	})
	if err != nil {
		return fmt.Errorf("failed rolling back transaction %s: %w", t.id, err)
	}
	return nil
}

func paramName(n int) string {
	return "p" + strconv.Itoa(n)
}

func convertArgs(args []any) ([]rdstypes.SqlParameter, error) {
	if len(args) == 0 {
		return nil, nil
	}

	params := make([]rdstypes.SqlParameter, 0, len(args))
	for i, arg := range args {
		p := rdstypes.SqlParameter{Name: aws.String(paramName(i + 1))}
		switch v := arg.(type) {
		case nil:
			p.Value = &rdstypes.FieldMemberIsNull{Value: true}
		case string:
			p.Value = &rdstypes.FieldMemberStringValue{Value: v}
		case int:
			p.Value = &rdstypes.FieldMemberLongValue{Value: int64(v)}
		case int32:
			p.Value = &rdstypes.FieldMemberLongValue{Value: int64(v)}
		case int64:
			p.Value = &rdstypes.FieldMemberLongValue{Value: v}
		case float64:
			p.Value = &rdstypes.FieldMemberDoubleValue{Value: v}
		case bool:
			p.Value = &rdstypes.FieldMemberBooleanValue{Value: v}
		case []byte:
			p.Value = &rdstypes.FieldMemberBlobValue{Value: v}
		case time.Time:
			p.Value = &rdstypes.FieldMemberStringValue{Value: v.UTC().Format("2006-01-02 15:04:05.999999")}
			p.TypeHint = rdstypes.TypeHintTimestamp
		default:
			return nil, dbtypes.InvalidInputError{
				Msg: fmt.Sprintf("unsupported parameter type %T for argument %d", arg, i+1),
			}
		}
		params = append(params, p)
	}

	return params, nil
}

func convertRecords(records [][]rdstypes.Field) ([]dbtypes.Row, error) {
	rows := make([]dbtypes.Row, 0, len(records))
	for _, rec := range records {
		row := make(dbtypes.Row, len(rec))
		for i, field := range rec {
			switch v := field.(type) {
			case *rdstypes.FieldMemberIsNull:
				row[i] = nil
			case *rdstypes.FieldMemberStringValue:
				row[i] = v.Value
			case *rdstypes.FieldMemberLongValue:
				row[i] = v.Value
			case *rdstypes.FieldMemberDoubleValue:
				row[i] = v.Value
			case *rdstypes.FieldMemberBooleanValue:
				row[i] = v.Value
			case *rdstypes.FieldMemberBlobValue:
				row[i] = string(v.Value)
			default:
				return nil, dbtypes.ScanError{
					ModelName: "row",
					Err:       fmt.Errorf("unsupported field type %T in column %d", field, i+1),
				}
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}
