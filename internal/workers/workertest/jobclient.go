// Package workertest records the commands a job handler sends so worker
// tests can assert on completed variables and thrown errors.
package workertest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

// Gateway answers the job response RPCs and records each request. Any
// other RPC panics through the nil embedded client.
type Gateway struct {
	pb.GatewayClient

	mu        sync.Mutex
	completed []*pb.CompleteJobRequest
	failed    []*pb.FailJobRequest
	thrown    []*pb.ThrowErrorRequest
}

func (g *Gateway) CompleteJob(_ context.Context, in *pb.CompleteJobRequest, _ ...grpc.CallOption) (*pb.CompleteJobResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed = append(g.completed, in)
	return &pb.CompleteJobResponse{}, nil
}

func (g *Gateway) FailJob(_ context.Context, in *pb.FailJobRequest, _ ...grpc.CallOption) (*pb.FailJobResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failed = append(g.failed, in)
	return &pb.FailJobResponse{}, nil
}

func (g *Gateway) ThrowError(_ context.Context, in *pb.ThrowErrorRequest, _ ...grpc.CallOption) (*pb.ThrowErrorResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.thrown = append(g.thrown, in)
	return &pb.ThrowErrorResponse{}, nil
}

// JobClient builds real zeebe commands on top of a recording Gateway.
type JobClient struct {
	Gateway *Gateway
}

func NewJobClient() *JobClient {
	return &JobClient{Gateway: &Gateway{}}
}

func noRetry(context.Context, error) bool { return false }

func (c *JobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return commands.NewCompleteJobCommand(c.Gateway, noRetry)
}

func (c *JobClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	return commands.NewFailJobCommand(c.Gateway, noRetry)
}

func (c *JobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	return commands.NewThrowErrorCommand(c.Gateway, noRetry)
}

// Completed decodes the variables of the single CompleteJob request.
func (c *JobClient) Completed(t testing.TB) map[string]interface{} {
	t.Helper()
	c.Gateway.mu.Lock()
	defer c.Gateway.mu.Unlock()
	require.Len(t, c.Gateway.completed, 1, "expected exactly one completed job")

	vars := map[string]interface{}{}
	require.NoError(t, json.Unmarshal([]byte(c.Gateway.completed[0].Variables), &vars))
	return vars
}

// ThrownCode returns the error code of the single ThrowError request.
func (c *JobClient) ThrownCode(t testing.TB) string {
	t.Helper()
	c.Gateway.mu.Lock()
	defer c.Gateway.mu.Unlock()
	require.Len(t, c.Gateway.thrown, 1, "expected exactly one thrown error")
	require.Empty(t, c.Gateway.completed)
	return c.Gateway.thrown[0].ErrorCode
}

// FailedCode returns the errorCode variable of the single FailJob request.
func (c *JobClient) FailedCode(t testing.TB) string {
	t.Helper()
	c.Gateway.mu.Lock()
	defer c.Gateway.mu.Unlock()
	require.Len(t, c.Gateway.failed, 1, "expected exactly one failed job")
	require.Empty(t, c.Gateway.completed)

	vars := map[string]interface{}{}
	require.NoError(t, json.Unmarshal([]byte(c.Gateway.failed[0].Variables), &vars))
	code, _ := vars["errorCode"].(string)
	return code
}

// Job builds an activated job of taskType carrying vars as its variables.
func Job(t testing.TB, taskType string, vars interface{}) entities.Job {
	t.Helper()
	raw, err := json.Marshal(vars)
	require.NoError(t, err)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                42,
		Type:               taskType,
		ProcessInstanceKey: 7,
		Retries:            3,
		Variables:          string(raw),
	}}
}
