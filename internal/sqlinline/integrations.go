package sqlinline

const QSelectIntegrationToken = `--sql 624e99c2-67ba-419d-af1f-ddc5646c1860
select token
from integration_tokens
where provider = $1::text;
`

const QUpsertIntegrationToken = `--sql 3a827ace-6a17-4a3d-a4b0-2e0600e32710
insert into integration_tokens(provider, token, properties, updated_at)
values ($1::text, $2::text, $3::jsonb, now())
on conflict (provider) do update
set token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`
