package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"Cirkle/backend/go/internal/models"
	"Cirkle/backend/go/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// CredentialProvider 返回用户访问云端存储的令牌。
// found 为 false 表示该用户没有可用的令牌，这不是错误。
type CredentialProvider interface {
	AccessToken(ctx context.Context, userID string) (token string, found bool, err error)
}

// MetadataFetcher 从云端存储读取单个文件的当前名称。
type MetadataFetcher interface {
	FetchName(ctx context.Context, resourceID, token string) (string, error)
}

// ResourceStore 负责把修正后的名称写回群组文档。
type ResourceStore interface {
	UpdateResourceName(ctx context.Context, groupID, resourceID string, kind models.ResourceKind, newName string) error
}

// DefaultDebounceWindow 是未配置时的防抖窗口。
const DefaultDebounceWindow = 5 * time.Second

// ReconcilerOptions 控制对账的行为。零值字段使用默认值。
type ReconcilerOptions struct {
	DebounceWindow       time.Duration
	MaxConcurrentUpdates int           // 0 表示不限制
	PassTimeout          time.Duration // 0 表示不限制
	FetchTimeout         time.Duration // 0 表示不限制
	Guard                Guard         // 为空时使用进程级的 ProcessGuard
	Now                  func() time.Time
	Logger               *logger.Logger
}

// Reconciler 将群组中缓存的资源名称与云端存储中的实际名称对齐。
type Reconciler struct {
	creds   CredentialProvider
	fetcher MetadataFetcher
	store   ResourceStore

	debounce     time.Duration
	maxUpdates   int
	passTimeout  time.Duration
	fetchTimeout time.Duration
	guard        Guard
	now          func() time.Time
	logger       *logger.Logger
}

// NewReconciler 创建一个新的 Reconciler。
func NewReconciler(creds CredentialProvider, fetcher MetadataFetcher, store ResourceStore, opts ReconcilerOptions) *Reconciler {
	r := &Reconciler{
		creds:        creds,
		fetcher:      fetcher,
		store:        store,
		debounce:     opts.DebounceWindow,
		maxUpdates:   opts.MaxConcurrentUpdates,
		passTimeout:  opts.PassTimeout,
		fetchTimeout: opts.FetchTimeout,
		guard:        opts.Guard,
		now:          opts.Now,
		logger:       opts.Logger,
	}
	if r.debounce <= 0 {
		r.debounce = DefaultDebounceWindow
	}
	if r.guard == nil {
		r.guard = ProcessGuard()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = logger.Nop()
	}
	return r
}

// Reconcile 对群组执行一次名称对账。
//
// 返回 true 表示至少发起了一次名称修正（不保证全部写入成功）。
// 以下情况返回 false 且不报错：群组或其资源为空、已有对账正在进行、用户没有令牌、没有发现名称差异。
// 单个资源的读取或写入失败只记录日志，不会中断整个过程。
func (r *Reconciler) Reconcile(ctx context.Context, group *models.Group, userID string) (bool, error) {
	if group == nil || group.Resources == nil {
		return false, nil
	}

	log := r.logger.WithPayload(map[string]interface{}{"group_id": group.ID, "user_id": userID})

	release, acquired, err := r.guard.TryAcquire(ctx)
	if err != nil {
		return false, fmt.Errorf("获取对账锁失败: %w", err)
	}
	if !acquired {
		log.Debug("Reconcile already in progress, skipping")
		return false, nil
	}
	defer release()

	start := r.now()
	if r.passTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.passTimeout)
		defer cancel()
	}

	token, found, err := r.creds.AccessToken(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("读取用户令牌失败: %w", err)
	}
	if !found || token == "" {
		log.Debug("No storage access token for user, skipping reconcile")
		return false, nil
	}

	intents, err := r.collectIntents(ctx, group, token, start, log)
	if err != nil {
		return false, err
	}
	if len(intents) == 0 {
		return false, nil
	}

	r.applyIntents(ctx, group.ID, intents, log)
	return true, nil
}

// collectIntents 按 documents、files 的顺序依次读取远端名称并记录差异。
func (r *Reconciler) collectIntents(ctx context.Context, group *models.Group, token string, start time.Time, log *logger.Logger) ([]models.ReconcileIntent, error) {
	var intents []models.ReconcileIntent
	for _, kind := range models.ResourceKinds {
		for _, res := range group.Resources.List(kind) {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("对账被中断: %w", err)
			}
			if res.ID == "" {
				continue
			}
			// 用户刚在本地改过名，远端可能还没有生效。
			if res.LastUpdated != nil && start.Sub(*res.LastUpdated) < r.debounce {
				continue
			}

			remote, err := r.fetchName(ctx, res.ID, token)
			if err != nil {
				log.WithError(models.NewErrorInfo(err, "metadata_fetch_error")).
					WithField("resource", map[string]interface{}{"kind": kind, "resource_id": res.ID}).
					Warn("Failed to fetch remote resource name")
				continue
			}
			if remote == res.Name {
				continue
			}

			log.WithField("resource", map[string]interface{}{
				"kind":        kind,
				"resource_id": res.ID,
				"old_name":    res.Name,
				"new_name":    remote,
			}).Info("Resource name drift detected")
			intents = append(intents, models.ReconcileIntent{Kind: kind, ResourceID: res.ID, NewName: remote})
		}
	}
	return intents, nil
}

func (r *Reconciler) fetchName(ctx context.Context, resourceID, token string) (string, error) {
	if r.fetchTimeout <= 0 {
		return r.fetcher.FetchName(ctx, resourceID, token)
	}
	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()
	return r.fetcher.FetchName(fetchCtx, resourceID, token)
}

// applyIntents 并发写回所有修正，等待全部完成。单个失败不影响其他写入。
func (r *Reconciler) applyIntents(ctx context.Context, groupID string, intents []models.ReconcileIntent, log *logger.Logger) {
	limit := r.maxUpdates
	if limit <= 0 {
		limit = -1
	}

	var g errgroup.Group
	g.SetLimit(limit)

	var failed atomic.Int32
	for _, intent := range intents {
		g.Go(func() error {
			if err := r.store.UpdateResourceName(ctx, groupID, intent.ResourceID, intent.Kind, intent.NewName); err != nil {
				failed.Add(1)
				log.WithError(models.NewErrorInfo(err, "store_update_error")).
					WithField("resource", map[string]interface{}{"kind": intent.Kind, "resource_id": intent.ResourceID}).
					Error("Failed to update resource name")
			}
			return nil
		})
	}
	_ = g.Wait()

	log.WithField("result", map[string]interface{}{
		"attempted": len(intents),
		"failed":    failed.Load(),
	}).Info("Resource name updates applied")
}
