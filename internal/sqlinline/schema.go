package sqlinline

// Schema statements run one at a time at startup, in order. All DDL is
// idempotent so both binaries can race on boot.

const DDLCreateGenerationJobs = `--sql 584cd959-25e0-46b8-af11-c9568ed9fdf6
create table if not exists generation_jobs (
    id               uuid primary key,
    user_id          text not null,
    cache_key        text not null,
    prompt_json      jsonb not null,
    state            text not null,
    attempts_made    int not null default 0,
    max_attempts     int not null,
    run_at           timestamptz not null,
    lease_expires_at timestamptz,
    result_json      jsonb,
    failure_reason   text not null default '',
    attempts_json    jsonb not null default '[]'::jsonb,
    created_at       timestamptz not null default now(),
    updated_at       timestamptz not null default now(),
    finished_at      timestamptz
);
`

const DDLIndexGenerationJobsClaim = `--sql 9bf0299c-3241-4894-a91e-ff9ecb31bb37
create index if not exists idx_generation_jobs_claim
    on generation_jobs (state, run_at, created_at);
`

const DDLIndexGenerationJobsUser = `--sql 30e9de55-17b9-4ab8-9b3d-e9f5c67135b7
create index if not exists idx_generation_jobs_user
    on generation_jobs (user_id, state);
`

const DDLCreateSpriteCache = `--sql e15a8b64-113f-41f5-b8c0-10441a1b666c
create table if not exists sprite_cache (
    cache_key        text primary key,
    user_id          text not null,
    prompt_json      jsonb not null,
    result_json      jsonb not null,
    created_at       timestamptz not null,
    expires_at       timestamptz not null,
    hits             bigint not null default 0,
    last_accessed_at timestamptz not null
);
`

const DDLIndexSpriteCacheExpiry = `--sql 47ead2c5-447d-43f3-b0cd-0881358cd912
create index if not exists idx_sprite_cache_expires
    on sprite_cache (expires_at);
`

const DDLCreateDeadLetterJobs = `--sql b596d779-153d-4aa6-a877-1475159f8368
create table if not exists dead_letter_jobs (
    id             uuid primary key,
    job_id         uuid not null,
    user_id        text not null,
    cache_key      text not null,
    prompt_json    jsonb not null,
    failure_reason text not null,
    attempts_made  int not null,
    attempts_json  jsonb not null default '[]'::jsonb,
    failed_at      timestamptz not null
);
`

const DDLIndexDeadLetterJobsFailedAt = `--sql 0ff58dc9-c13e-4a34-b608-b3a5ca5f32a0
create index if not exists idx_dead_letter_jobs_failed_at
    on dead_letter_jobs (failed_at desc);
`

const DDLCreateIntegrationTokens = `--sql a4a08aa3-4c49-4449-9b6f-ea889505dc5a
create table if not exists integration_tokens (
    provider   text primary key,
    token      text not null,
    properties jsonb not null default '{}'::jsonb,
    updated_at timestamptz not null default now()
);
`

// Schema lists every DDL statement in execution order.
var Schema = []string{
	DDLCreateGenerationJobs,
	DDLIndexGenerationJobsClaim,
	DDLIndexGenerationJobsUser,
	DDLCreateSpriteCache,
	DDLIndexSpriteCacheExpiry,
	DDLCreateDeadLetterJobs,
	DDLIndexDeadLetterJobsFailedAt,
	DDLCreateIntegrationTokens,
}
