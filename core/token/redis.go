package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"FlowCash/model"

	"github.com/redis/go-redis/v9"
)

// Redis 中的代币数据布局
const (
	balancesKeyTemplate   = "token:%s:balances"   // hash: account -> amount
	allowancesKeyTemplate = "token:%s:allowances" // hash: owner|spender -> amount
	supplyKeyTemplate     = "token:%s:supply"
)

// Lua 的 number 为双精度浮点，超过 2^53 的金额无法精确比较；
// 脚本中用减法比较上限，避免 supply+amt 在 2^53 处舍入
const maxRedisAmount = model.Amount(1) << 53

// KEYS: balances, allowances  ARGV: owner, recipient, allowanceField, amount
var transferFromScript = redis.NewScript(`
local amt = tonumber(ARGV[4])
local allowed = tonumber(redis.call('HGET', KEYS[2], ARGV[3]) or '0')
if allowed < amt then
  return redis.error_reply('insufficient allowance')
end
local bal = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
if bal < amt then
  return redis.error_reply('insufficient balance')
end
redis.call('HINCRBY', KEYS[1], ARGV[1], '-' .. ARGV[4])
redis.call('HINCRBY', KEYS[1], ARGV[2], ARGV[4])
redis.call('HINCRBY', KEYS[2], ARGV[3], '-' .. ARGV[4])
return 1
`)

// KEYS: balances  ARGV: from, to, amount
var transferScript = redis.NewScript(`
local amt = tonumber(ARGV[3])
local bal = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
if bal < amt then
  return redis.error_reply('insufficient balance')
end
redis.call('HINCRBY', KEYS[1], ARGV[1], '-' .. ARGV[3])
redis.call('HINCRBY', KEYS[1], ARGV[2], ARGV[3])
return 1
`)

// KEYS: balances, allowances  ARGV: holder, owner, allowanceField, amount, maxAllowance
var refundScript = redis.NewScript(`
local amt = tonumber(ARGV[4])
local bal = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
if bal < amt then
  return redis.error_reply('insufficient balance')
end
redis.call('HINCRBY', KEYS[1], ARGV[1], '-' .. ARGV[4])
redis.call('HINCRBY', KEYS[1], ARGV[2], ARGV[4])
local allowed = tonumber(redis.call('HGET', KEYS[2], ARGV[3]) or '0')
if amt > tonumber(ARGV[5]) - allowed then
  redis.call('HSET', KEYS[2], ARGV[3], ARGV[5])
else
  redis.call('HINCRBY', KEYS[2], ARGV[3], ARGV[4])
end
return 1
`)

// KEYS: balances, supply  ARGV: to, amount, maxSupply
var mintScript = redis.NewScript(`
local amt = tonumber(ARGV[2])
local supply = tonumber(redis.call('GET', KEYS[2]) or '0')
if amt > tonumber(ARGV[3]) - supply then
  return redis.error_reply('supply overflow')
end
redis.call('INCRBY', KEYS[2], ARGV[2])
redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// RedisToken keeps balances and allowances in Redis hashes; every transfer
// is a single Lua script so it is atomic across service instances.
type RedisToken struct {
	client        *redis.Client
	symbol        string
	balancesKey   string
	allowancesKey string
	supplyKey     string
}

// NewRedisToken 创建基于 Redis 的代币
func NewRedisToken(client *redis.Client, symbol string) *RedisToken {
	return &RedisToken{
		client:        client,
		symbol:        symbol,
		balancesKey:   fmt.Sprintf(balancesKeyTemplate, symbol),
		allowancesKey: fmt.Sprintf(allowancesKeyTemplate, symbol),
		supplyKey:     fmt.Sprintf(supplyKeyTemplate, symbol),
	}
}

func (r *RedisToken) Info() Info {
	return Info{Symbol: r.symbol, Decimals: model.AmountDecimals}
}

func allowanceField(owner, spender string) string {
	return owner + "|" + spender
}

func (r *RedisToken) BalanceOf(ctx context.Context, owner string) (model.Amount, error) {
	return r.hgetAmount(ctx, r.balancesKey, owner)
}

func (r *RedisToken) Allowance(ctx context.Context, owner, spender string) (model.Amount, error) {
	return r.hgetAmount(ctx, r.allowancesKey, allowanceField(owner, spender))
}

func (r *RedisToken) Approve(ctx context.Context, owner, spender string, amount model.Amount) error {
	if err := r.check(amount, true, owner, spender); err != nil {
		return err
	}
	field := allowanceField(owner, spender)
	if amount == 0 {
		if err := r.client.HDel(ctx, r.allowancesKey, field).Err(); err != nil {
			return fmt.Errorf("failed to reset allowance: %w", err)
		}
		return nil
	}
	if err := r.client.HSet(ctx, r.allowancesKey, field, uint64(amount)).Err(); err != nil {
		return fmt.Errorf("failed to set allowance: %w", err)
	}
	return nil
}

func (r *RedisToken) TransferFrom(ctx context.Context, spender, owner, recipient string, amount model.Amount) error {
	if err := r.check(amount, false, spender, owner, recipient); err != nil {
		return err
	}
	err := transferFromScript.Run(ctx, r.client,
		[]string{r.balancesKey, r.allowancesKey},
		owner, recipient, allowanceField(owner, spender), formatAmount(amount),
	).Err()
	return mapScriptError(err)
}

func (r *RedisToken) Transfer(ctx context.Context, from, to string, amount model.Amount) error {
	if err := r.check(amount, false, from, to); err != nil {
		return err
	}
	err := transferScript.Run(ctx, r.client,
		[]string{r.balancesKey},
		from, to, formatAmount(amount),
	).Err()
	return mapScriptError(err)
}

// Refund 退回拉取的款项并恢复授权额度，授权上限为 2^53
func (r *RedisToken) Refund(ctx context.Context, spender, holder, owner string, amount model.Amount) error {
	if err := r.check(amount, false, spender, holder, owner); err != nil {
		return err
	}
	err := refundScript.Run(ctx, r.client,
		[]string{r.balancesKey, r.allowancesKey},
		holder, owner, allowanceField(owner, spender), formatAmount(amount), formatAmount(maxRedisAmount),
	).Err()
	return mapScriptError(err)
}

// Mint 增发代币到指定账户
func (r *RedisToken) Mint(ctx context.Context, to string, amount model.Amount) error {
	if err := r.check(amount, false, to); err != nil {
		return err
	}
	err := mintScript.Run(ctx, r.client,
		[]string{r.balancesKey, r.supplyKey},
		to, formatAmount(amount), formatAmount(maxRedisAmount),
	).Err()
	return mapScriptError(err)
}

func (r *RedisToken) check(amount model.Amount, allowZero bool, accounts ...string) error {
	if r.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	if err := checkAccounts(accounts...); err != nil {
		return err
	}
	if (amount == 0 && !allowZero) || amount > maxRedisAmount {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return nil
}

func (r *RedisToken) hgetAmount(ctx context.Context, key, field string) (model.Amount, error) {
	if r.client == nil {
		return 0, fmt.Errorf("Redis client not initialized")
	}
	val, err := r.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s[%s]: %w", key, field, err)
	}
	n, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt amount in %s[%s]: %w", key, field, err)
	}
	return model.Amount(n), nil
}

func formatAmount(a model.Amount) string {
	return strconv.FormatUint(uint64(a), 10)
}

func mapScriptError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "insufficient allowance"):
		return fmt.Errorf("%w: %s", ErrInsufficientAllowance, msg)
	case strings.Contains(msg, "insufficient balance"):
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, msg)
	case strings.Contains(msg, "supply overflow"):
		return fmt.Errorf("%w: %s", ErrInvalidAmount, msg)
	}
	return fmt.Errorf("token script failed: %w", err)
}
