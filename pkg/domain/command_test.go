package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deployCommand() Command {
	return Command{
		Name:    "deploy",
		Summary: "Deploy a service",
		Params: []Param{
			{Name: "service", Type: ParamString, Required: true},
			{Name: "replicas", Type: ParamInt, Default: 1},
			{Name: "canary", Type: ParamBool},
			{Name: "env", Type: ParamEnum, Choices: []string{"staging", "prod"}, Default: "staging"},
			{Name: "weight", Type: ParamFloat},
		},
	}
}

func TestValidateArgs(t *testing.T) {
	cmd := deployCommand()

	tests := []struct {
		name    string
		args    Args
		want    Args
		wantErr string
	}{
		{
			name: "defaults filled",
			args: Args{"service": "api"},
			want: Args{"service": "api", "replicas": 1, "env": "staging"},
		},
		{
			name: "coerce from strings",
			args: Args{"service": "api", "replicas": "3", "canary": "true", "weight": "0.5"},
			want: Args{"service": "api", "replicas": 3, "canary": true, "weight": 0.5, "env": "staging"},
		},
		{
			name: "coerce from json numbers",
			args: Args{"service": "api", "replicas": float64(2)},
			want: Args{"service": "api", "replicas": 2, "env": "staging"},
		},
		{
			name:    "missing required",
			args:    Args{"replicas": 2},
			wantErr: `argument "service": required`,
		},
		{
			name:    "unknown parameter",
			args:    Args{"service": "api", "color": "blue"},
			wantErr: `argument "color": not a declared parameter`,
		},
		{
			name:    "enum out of range",
			args:    Args{"service": "api", "env": "dev"},
			wantErr: `is not one of`,
		},
		{
			name:    "bad int",
			args:    Args{"service": "api", "replicas": "lots"},
			wantErr: "expected int",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cmd.ValidateArgs(tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				var argErr *ArgumentError
				assert.True(t, errors.As(err, &argErr), "error should be an ArgumentError")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArgsDecode(t *testing.T) {
	type deployArgs struct {
		Service  string
		Replicas int
		Canary   bool
	}

	args := Args{"service": "api", "replicas": "4", "canary": true}

	var out deployArgs
	require.NoError(t, args.Decode(&out))
	assert.Equal(t, deployArgs{Service: "api", Replicas: 4, Canary: true}, out)
}

func TestArgsGetters(t *testing.T) {
	args := Args{"name": "web", "count": 7, "ratio": 1.5, "force": true}

	assert.Equal(t, "web", args.String("name"))
	assert.Equal(t, 7, args.Int("count"))
	assert.Equal(t, 1.5, args.Float("ratio"))
	assert.True(t, args.Bool("force"))

	assert.Equal(t, "", args.String("missing"))
	assert.Equal(t, 0, args.Int("missing"))
	assert.Equal(t, []string{"count", "force", "name", "ratio"}, args.Names())
}

func TestResultStatus(t *testing.T) {
	ok := Result{RunID: "r1"}
	assert.Equal(t, StatusOK, ok.Status())

	bad := Result{RunID: "r2", Err: errors.New("boom")}
	assert.Equal(t, StatusFault, bad.Status())

	rec := NewRecord(bad, Request{Command: "x", Session: "s1"})
	assert.Equal(t, StatusFault, rec.Status)
	assert.Equal(t, "boom", rec.Error)
	assert.Equal(t, "s1", rec.Session)
}
