package coord

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Etcd implements dlock.Client with leases and transactions.
type Etcd struct {
	client *clientv3.Client
}

// NewEtcd wraps an existing client. The caller keeps ownership of it.
func NewEtcd(client *clientv3.Client) *Etcd {
	return &Etcd{client: client}
}

// DialEtcd connects to the given endpoints.
func DialEtcd(endpoints []string, dialTimeout time.Duration) (*Etcd, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("coord: dial etcd %v: %w", endpoints, err)
	}
	return &Etcd{client: client}, nil
}

// leaseSeconds rounds ttl up to whole seconds, the lease granularity.
func leaseSeconds(ttl time.Duration) int64 {
	secs := int64((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// SetIfAbsent grants a lease and writes key only if it has never been created
// or has since been deleted.
func (e *Etcd) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}

	lease, err := e.client.Grant(ctx, leaseSeconds(ttl))
	if err != nil {
		return false, fmt.Errorf("coord: etcd grant %s: %w", key, err)
	}

	resp, err := e.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, value, clientv3.WithLease(lease.ID))).
		Commit()
	if err != nil {
		return false, fmt.Errorf("coord: etcd txn %s: %w", key, err)
	}
	if !resp.Succeeded {
		// Unused lease; it would expire anyway.
		e.client.Revoke(ctx, lease.ID)
		return false, nil
	}
	return true, nil
}

// DeleteIfEqual deletes key in a transaction guarded by its value.
func (e *Etcd) DeleteIfEqual(ctx context.Context, key, expected string) (bool, error) {
	resp, err := e.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(key), "=", expected)).
		Then(clientv3.OpDelete(key)).
		Commit()
	if err != nil {
		return false, fmt.Errorf("coord: etcd txn %s: %w", key, err)
	}
	return resp.Succeeded, nil
}

// Close closes the underlying client.
func (e *Etcd) Close() error {
	return e.client.Close()
}
