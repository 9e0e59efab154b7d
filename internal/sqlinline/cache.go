package sqlinline

const QUpsertCacheEntry = `--sql 012160a6-6b78-41fe-af53-13d6d508afb0
insert into sprite_cache(
    cache_key,
    user_id,
    prompt_json,
    result_json,
    created_at,
    expires_at,
    hits,
    last_accessed_at
)
values ($1::text, $2::text, $3::jsonb, $4::jsonb, $5::timestamptz, $6::timestamptz, $7::bigint, $8::timestamptz)
on conflict (cache_key) do update
set user_id = excluded.user_id,
    prompt_json = excluded.prompt_json,
    result_json = excluded.result_json,
    created_at = excluded.created_at,
    expires_at = excluded.expires_at,
    hits = excluded.hits,
    last_accessed_at = excluded.last_accessed_at;
`

const QFetchCacheEntry = `--sql 114af6fc-cfc8-4f2a-8521-ebcc43581488
select cache_key, user_id, prompt_json, result_json, created_at, expires_at, hits, last_accessed_at
from sprite_cache
where cache_key = $1::text;
`

const QTouchCacheEntry = `--sql e91ab148-de80-40ec-8c10-fd629eaab89f
update sprite_cache
set hits = hits + 1,
    last_accessed_at = $2::timestamptz
where cache_key = $1::text;
`

const QDeleteExpiredCacheEntries = `--sql 5e6717b2-1848-4494-9f03-2994cb54cb61
delete from sprite_cache
where expires_at <= now();
`
