package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/quarrydb/quarry/pkg/types"
)

// DynamoStore implements Store for DynamoDB.
type DynamoStore struct {
	client   *dynamodb.Client
	pageSize int
}

// Options holds connection settings for DynamoDB.
type Options struct {
	// Region is the AWS region.
	Region string
	// Endpoint is an optional custom endpoint (for DynamoDB Local).
	Endpoint string
	// Profile is the shared credentials profile, empty for the default chain.
	Profile string
	// PageSize caps items per request, zero for the service default.
	PageSize int
}

// NewDynamoStore creates a DynamoDB-backed store.
func NewDynamoStore(ctx context.Context, opts Options) (*DynamoStore, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var ddbOpts []func(*dynamodb.Options)
	if opts.Endpoint != "" {
		ddbOpts = append(ddbOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		})
	}

	return &DynamoStore{
		client:   dynamodb.NewFromConfig(awsCfg, ddbOpts...),
		pageSize: opts.PageSize,
	}, nil
}

// NewDynamoStoreWithClient creates a store with a pre-configured client.
func NewDynamoStoreWithClient(client *dynamodb.Client, pageSize int) *DynamoStore {
	return &DynamoStore{client: client, pageSize: pageSize}
}

// Query reads one page of a partition.
func (s *DynamoStore) Query(ctx context.Context, req QueryRequest) (Page, error) {
	pv, err := toAttributeValue(req.PartitionValue)
	if err != nil {
		return Page{}, fmt.Errorf("partition value: %w", err)
	}

	expr := "#pk = :pv"
	names := map[string]string{"#pk": req.PartitionAttr}
	values := map[string]ddbtypes.AttributeValue{":pv": pv}

	if req.Sort != nil {
		sortExpr, err := appendSortCondition(req.Sort, names, values)
		if err != nil {
			return Page{}, err
		}
		expr += " AND " + sortExpr
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(req.Table),
		KeyConditionExpression:    aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}
	if req.Index != "" {
		input.IndexName = aws.String(req.Index)
	}
	if limit := s.effectiveLimit(req.Limit); limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}
	if req.StartToken != "" {
		start, err := decodeToken(req.StartToken)
		if err != nil {
			return Page{}, err
		}
		input.ExclusiveStartKey = start
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return Page{}, mapRemoteError(err)
	}
	return pageFromWire(out.Items, out.LastEvaluatedKey, out.ScannedCount)
}

// Scan reads one page of a scan segment.
func (s *DynamoStore) Scan(ctx context.Context, req ScanRequest) (Page, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(req.Table),
	}
	if req.TotalSegments > 0 {
		input.Segment = aws.Int32(int32(req.Segment))
		input.TotalSegments = aws.Int32(int32(req.TotalSegments))
	}
	if limit := s.effectiveLimit(req.Limit); limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}
	if req.StartToken != "" {
		start, err := decodeToken(req.StartToken)
		if err != nil {
			return Page{}, err
		}
		input.ExclusiveStartKey = start
	}

	out, err := s.client.Scan(ctx, input)
	if err != nil {
		return Page{}, mapRemoteError(err)
	}
	return pageFromWire(out.Items, out.LastEvaluatedKey, out.ScannedCount)
}

// PutItem writes a full item.
func (s *DynamoStore) PutItem(ctx context.Context, table string, item types.Item) error {
	wire, err := toWireItem(item)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      wire,
	})
	if err != nil {
		return mapRemoteError(err)
	}
	return nil
}

// DeleteItem removes the item addressed by key.
func (s *DynamoStore) DeleteItem(ctx context.Context, table string, key types.Item) error {
	wire, err := toWireItem(key)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(table),
		Key:       wire,
	})
	if err != nil {
		return mapRemoteError(err)
	}
	return nil
}

// DescribeTable returns the table's key layout.
func (s *DynamoStore) DescribeTable(ctx context.Context, table string) (TableDescription, error) {
	out, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	})
	if err != nil {
		return TableDescription{}, mapRemoteError(err)
	}

	desc := TableDescription{
		Schema:         types.KeySchema{TableName: table},
		AttributeKinds: make(map[string]types.Kind),
		ItemCount:      aws.ToInt64(out.Table.ItemCount),
	}

	for _, def := range out.Table.AttributeDefinitions {
		desc.AttributeKinds[aws.ToString(def.AttributeName)] = scalarKind(def.AttributeType)
	}

	partition, sortAttr := splitKeyElements(out.Table.KeySchema)
	desc.Schema.PartitionAttr = partition
	desc.Schema.SortAttr = sortAttr

	for _, lsi := range out.Table.LocalSecondaryIndexes {
		_, ixSort := splitKeyElements(lsi.KeySchema)
		desc.Schema.Indexes = append(desc.Schema.Indexes, types.IndexDef{
			Name:           aws.ToString(lsi.IndexName),
			Kind:           types.IndexLocal,
			SortAttr:       ixSort,
			FullProjection: isFullProjection(lsi.Projection),
		})
	}
	for _, gsi := range out.Table.GlobalSecondaryIndexes {
		ixPartition, ixSort := splitKeyElements(gsi.KeySchema)
		desc.Schema.Indexes = append(desc.Schema.Indexes, types.IndexDef{
			Name:           aws.ToString(gsi.IndexName),
			Kind:           types.IndexGlobal,
			PartitionAttr:  ixPartition,
			SortAttr:       ixSort,
			FullProjection: isFullProjection(gsi.Projection),
		})
	}

	if err := desc.Schema.Validate(); err != nil {
		return TableDescription{}, fmt.Errorf("described table %s: %w", table, err)
	}
	return desc, nil
}

// ListTables returns all table names visible to the connection.
func (s *DynamoStore) ListTables(ctx context.Context) ([]string, error) {
	var tables []string
	paginator := dynamodb.NewListTablesPaginator(s.client, &dynamodb.ListTablesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapRemoteError(err)
		}
		tables = append(tables, page.TableNames...)
	}
	return tables, nil
}

func (s *DynamoStore) effectiveLimit(reqLimit int) int {
	if reqLimit > 0 {
		return reqLimit
	}
	return s.pageSize
}

// appendSortCondition adds the sort key clause, its name, and its
// value placeholders. Returns the clause text.
func appendSortCondition(sc *SortCondition, names map[string]string, values map[string]ddbtypes.AttributeValue) (string, error) {
	names["#sk"] = sc.Attr

	switch sc.Operator {
	case types.OpBETWEEN:
		lo, err := toAttributeValue(sc.Low)
		if err != nil {
			return "", fmt.Errorf("sort low bound: %w", err)
		}
		hi, err := toAttributeValue(sc.High)
		if err != nil {
			return "", fmt.Errorf("sort high bound: %w", err)
		}
		values[":lo"] = lo
		values[":hi"] = hi
		return "#sk BETWEEN :lo AND :hi", nil
	default:
		sv, err := toAttributeValue(sc.Value)
		if err != nil {
			return "", fmt.Errorf("sort value: %w", err)
		}
		values[":sv"] = sv
		switch sc.Operator {
		case types.OpEQ:
			return "#sk = :sv", nil
		case types.OpLT:
			return "#sk < :sv", nil
		case types.OpLE:
			return "#sk <= :sv", nil
		case types.OpGT:
			return "#sk > :sv", nil
		case types.OpGE:
			return "#sk >= :sv", nil
		case types.OpPREFIX:
			return "begins_with(#sk, :sv)", nil
		default:
			return "", fmt.Errorf("remote: operator %s cannot be pushed to a sort key", sc.Operator)
		}
	}
}

func pageFromWire(items []map[string]ddbtypes.AttributeValue, lastKey map[string]ddbtypes.AttributeValue, scanned int32) (Page, error) {
	page := Page{
		Items:        make([]types.Item, 0, len(items)),
		Count:        len(items),
		ScannedCount: int(scanned),
	}
	for _, wire := range items {
		it, err := fromWireItem(wire)
		if err != nil {
			return Page{}, err
		}
		page.Items = append(page.Items, it)
	}
	if len(lastKey) > 0 {
		token, err := encodeToken(lastKey)
		if err != nil {
			return Page{}, err
		}
		page.NextToken = token
	}
	return page, nil
}

func splitKeyElements(elements []ddbtypes.KeySchemaElement) (partition, sort string) {
	for _, el := range elements {
		switch el.KeyType {
		case ddbtypes.KeyTypeHash:
			partition = aws.ToString(el.AttributeName)
		case ddbtypes.KeyTypeRange:
			sort = aws.ToString(el.AttributeName)
		}
	}
	return partition, sort
}

func isFullProjection(p *ddbtypes.Projection) bool {
	return p != nil && p.ProjectionType == ddbtypes.ProjectionTypeAll
}

func scalarKind(t ddbtypes.ScalarAttributeType) types.Kind {
	switch t {
	case ddbtypes.ScalarAttributeTypeN:
		return types.KindNumber
	case ddbtypes.ScalarAttributeTypeB:
		return types.KindBinary
	default:
		return types.KindString
	}
}

// mapRemoteError translates service errors to the package sentinels
// where one applies.
func mapRemoteError(err error) error {
	var notFound *ddbtypes.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", ErrTableNotFound, err)
	}
	if IsThrottle(err) {
		return fmt.Errorf("%w: %v", ErrThrottled, err)
	}
	return err
}

// IsThrottle reports whether the error is a throttling response that
// may clear on retry.
func IsThrottle(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrThrottled) {
		return true
	}
	var provisioned *ddbtypes.ProvisionedThroughputExceededException
	if errors.As(err, &provisioned) {
		return true
	}
	var requestLimit *ddbtypes.RequestLimitExceeded
	if errors.As(err, &requestLimit) {
		return true
	}
	var serverErr *ddbtypes.InternalServerError
	if errors.As(err, &serverErr) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "ThrottlingException" || code == "InternalServerError"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// Continuation tokens are the remote's last evaluated key flattened to
// a URL-safe string. Key attributes are scalars, so three slots cover
// every legal key type.
type tokenEntry struct {
	S *string `json:"s,omitempty"`
	N *string `json:"n,omitempty"`
	B []byte  `json:"b,omitempty"`
}

func encodeToken(lastKey map[string]ddbtypes.AttributeValue) (string, error) {
	entries := make(map[string]tokenEntry, len(lastKey))
	for name, av := range lastKey {
		switch m := av.(type) {
		case *ddbtypes.AttributeValueMemberS:
			entries[name] = tokenEntry{S: aws.String(m.Value)}
		case *ddbtypes.AttributeValueMemberN:
			entries[name] = tokenEntry{N: aws.String(m.Value)}
		case *ddbtypes.AttributeValueMemberB:
			entries[name] = tokenEntry{B: m.Value}
		default:
			return "", fmt.Errorf("remote: continuation key attribute %s has non-scalar type %T", name, av)
		}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("remote: encode continuation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func decodeToken(token string) (map[string]ddbtypes.AttributeValue, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("remote: malformed continuation token: %w", err)
	}
	var entries map[string]tokenEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("remote: malformed continuation token: %w", err)
	}
	out := make(map[string]ddbtypes.AttributeValue, len(entries))
	for name, e := range entries {
		switch {
		case e.S != nil:
			out[name] = &ddbtypes.AttributeValueMemberS{Value: *e.S}
		case e.N != nil:
			out[name] = &ddbtypes.AttributeValueMemberN{Value: *e.N}
		case e.B != nil:
			out[name] = &ddbtypes.AttributeValueMemberB{Value: e.B}
		default:
			return nil, fmt.Errorf("remote: continuation token attribute %s has no value", name)
		}
	}
	return out, nil
}
