// Package sqlinline holds every SQL statement the service executes. Each
// statement begins with a "--sql <uuid>" marker line that SQLRunner strips
// and logs; tools/sqllint enforces the convention.
package sqlinline

const QEnqueueJob = `--sql a0314fb2-214a-481a-b6fc-6e9d1e8f8b62
insert into generation_jobs(
    id,
    user_id,
    cache_key,
    prompt_json,
    state,
    attempts_made,
    max_attempts,
    run_at,
    failure_reason,
    attempts_json,
    created_at,
    updated_at
)
values ($1::uuid, $2::text, $3::text, $4::jsonb, 'waiting', 0, $5::int, now(), '', '[]'::jsonb, now(), now());
`

const QClaimJob = `--sql 227d49ff-222b-4019-907f-6bcc719e2166
with next_job as (
    select id
    from generation_jobs
    where (state = 'waiting' and run_at <= now())
       or (state = 'delayed' and run_at <= now())
       or (state = 'active' and lease_expires_at is not null and lease_expires_at <= now())
    order by run_at asc, created_at asc
    for update skip locked
    limit 1
),
claimed as (
    update generation_jobs
    set state = 'active',
        attempts_made = attempts_made + 1,
        lease_expires_at = now() + make_interval(secs => $1::int),
        updated_at = now()
    where id in (select id from next_job)
    returning id, user_id, cache_key, prompt_json, state, attempts_made, max_attempts,
              run_at, lease_expires_at, result_json, failure_reason, attempts_json,
              created_at, updated_at, finished_at
)
select * from claimed;
`

const QCompleteJob = `--sql 3dd00672-59bc-4f78-aba4-fd548d1ede9d
update generation_jobs
set state = 'completed',
    result_json = $2::jsonb,
    lease_expires_at = null,
    finished_at = now(),
    updated_at = now()
where id = $1::uuid and state = 'active';
`

const QFailJob = `--sql 7335d9d4-e24c-495d-9963-0b22054711bf
update generation_jobs
set state = 'failed',
    failure_reason = $2::text,
    attempts_json = attempts_json || $3::jsonb,
    lease_expires_at = null,
    finished_at = now(),
    updated_at = now()
where id = $1::uuid and state = 'active';
`

const QRetryJobLater = `--sql b6801c65-2a0d-4006-8610-f74b9e758080
update generation_jobs
set state = 'delayed',
    run_at = $2::timestamptz,
    attempts_json = attempts_json || $3::jsonb,
    lease_expires_at = null,
    updated_at = now()
where id = $1::uuid and state = 'active';
`

const QGetJob = `--sql 68328db3-f5a4-408c-a916-01fd4dbd7a23
select id, user_id, cache_key, prompt_json, state, attempts_made, max_attempts,
       run_at, lease_expires_at, result_json, failure_reason, attempts_json,
       created_at, updated_at, finished_at
from generation_jobs
where id = $1::uuid;
`

const QQueueDepth = `--sql a151c9bd-4bb8-4f59-87d0-00121579d0b0
select count(*)
from generation_jobs
where state in ('waiting', 'active', 'delayed');
`

const QCountJobsByState = `--sql 8fa1ba8d-6ad1-404b-8ec0-ee349d083136
select state, count(*)
from generation_jobs
group by state;
`
