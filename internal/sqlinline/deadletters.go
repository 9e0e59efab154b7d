package sqlinline

const QInsertDeadLetter = `--sql 089f2dd2-62b0-4a41-b06f-7bd3e1dcf85a
insert into dead_letter_jobs(
    id,
    job_id,
    user_id,
    cache_key,
    prompt_json,
    failure_reason,
    attempts_made,
    attempts_json,
    failed_at
)
values ($1::uuid, $2::uuid, $3::text, $4::text, $5::jsonb, $6::text, $7::int, $8::jsonb, $9::timestamptz);
`

const QListDeadLetters = `--sql 542e2025-d167-4a28-8730-6b4dd70478f4
select id, job_id, user_id, cache_key, prompt_json, failure_reason, attempts_made, attempts_json, failed_at
from dead_letter_jobs
order by failed_at desc
limit $1::int;
`

const QGetDeadLetter = `--sql f3b8a617-9c2e-4d25-8f41-5a907c3db2ea
select id, job_id, user_id, cache_key, prompt_json, failure_reason, attempts_made, attempts_json, failed_at
from dead_letter_jobs
where id = $1::uuid;
`

const QDeleteDeadLetter = `--sql 1d5c0b84-7a3f-4e96-b2d8-c4f1e6a95037
delete from dead_letter_jobs
where id = $1::uuid;
`
